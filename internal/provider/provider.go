package provider

import (
	"context"
	"encoding/json"
)

// Roles used in a message history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Params is the request payload: a message history, a stream flag and
// arbitrary extra fields merged into the JSON body.
type Params struct {
	Model    string         `json:"model,omitempty" yaml:"model"`
	Messages []Message      `json:"messages" yaml:"messages"`
	Stream   bool           `json:"stream" yaml:"stream"`
	Extra    map[string]any `json:"-" yaml:"extra"`
}

// LastUser returns the content of the most recent user message.
func (p Params) LastUser() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

func (p Params) MarshalJSON() ([]byte, error) {
	type plain Params
	base, err := json.Marshal(plain(p))
	if err != nil || len(p.Extra) == 0 {
		return base, err
	}
	m := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		m[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	// known fields win over extras
	for k, v := range fields {
		m[k] = v
	}
	return json.Marshal(m)
}

func (p *Params) UnmarshalJSON(data []byte) error {
	type plain Params
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"model", "messages", "stream"} {
		delete(all, k)
	}
	if len(all) > 0 {
		v.Extra = make(map[string]any, len(all))
		for k, raw := range all {
			var x any
			if err := json.Unmarshal(raw, &x); err != nil {
				return err
			}
			v.Extra[k] = x
		}
	}
	*p = Params(v)
	return nil
}

// Delta is one piece of generated text.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
	Done    bool   `json:"done,omitempty"`
}

// Provider generates a response for a chat request. The channel is closed
// when generation ends or ctx is done.
type Provider interface {
	Chat(ctx context.Context, req *Params) (<-chan Delta, error)
}
