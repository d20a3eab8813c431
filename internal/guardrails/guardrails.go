package guardrails

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/ai-gateway/chatstream-go/internal/provider"
	"github.com/ai-gateway/chatstream-go/internal/transport"
)

// ErrViolation is returned when input contains a banned word.
var ErrViolation = errors.New("input violates guardrails")

// Guardrails performs simple input validation.
type Guardrails struct {
	banned []string
}

// New returns guardrails rejecting the given words; "banned" when none are given.
func New(words ...string) *Guardrails {
	if len(words) == 0 {
		words = []string{"banned"}
	}
	banned := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			banned = append(banned, w)
		}
	}
	return &Guardrails{banned: banned}
}

// CheckInput returns an error if input contains banned words.
func (g *Guardrails) CheckInput(input string) error {
	lower := strings.ToLower(input)
	for _, w := range g.banned {
		if strings.Contains(lower, w) {
			return errors.Wrapf(ErrViolation, "contains %q", w)
		}
	}
	return nil
}

// CheckParams validates every user message.
func (g *Guardrails) CheckParams(p provider.Params) error {
	for _, m := range p.Messages {
		if m.Role != provider.RoleUser {
			continue
		}
		if err := g.CheckInput(m.Content); err != nil {
			return err
		}
	}
	return nil
}

// OnRequest checks the outgoing payload before it is sent, for use as a
// transport request middleware.
func (g *Guardrails) OnRequest(req *http.Request, _ transport.RequestInfo) (*http.Request, error) {
	if req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	var p provider.Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decode request body")
	}
	if err := g.CheckParams(p); err != nil {
		return nil, err
	}
	return req, nil
}
