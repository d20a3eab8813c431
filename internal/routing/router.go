package routing

import (
	"sort"

	"github.com/ai-gateway/chatstream-go/internal/provider"
)

// Model describes a model served by the backend.
type Model struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Router maps models to providers.
type Router struct {
	models    map[string]Model
	providers map[string]provider.Provider
	defaultP  provider.Provider
}

func New() *Router {
	return &Router{
		models:    make(map[string]Model),
		providers: make(map[string]provider.Provider),
	}
}

// Register associates a model with a provider implementation. The first
// registered provider serves unknown models.
func (r *Router) Register(model string, p provider.Provider) {
	r.providers[model] = p
	r.models[model] = Model{Name: model, Weight: 1}
	if r.defaultP == nil {
		r.defaultP = p
	}
}

// ProviderFor returns the provider for a model or the default provider.
func (r *Router) ProviderFor(model string) provider.Provider {
	if p, ok := r.providers[model]; ok {
		return p
	}
	return r.defaultP
}

// Models returns the registered models sorted by name.
func (r *Router) Models() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
