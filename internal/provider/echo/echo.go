package echo

import (
	"context"
	"strings"
	"time"

	"github.com/ai-gateway/chatstream-go/internal/provider"
)

// Provider responds by echoing the last user message one word at a time.
type Provider struct {
	delay time.Duration
}

// New returns an echo provider that waits delay between words.
func New(delay time.Duration) *Provider { return &Provider{delay: delay} }

func (p *Provider) Chat(ctx context.Context, req *provider.Params) (<-chan provider.Delta, error) {
	words := strings.Fields("Echo: " + req.LastUser())
	ch := make(chan provider.Delta)
	go func() {
		defer close(ch)
		for i, w := range words {
			if i > 0 {
				w = " " + w
				if p.delay > 0 {
					select {
					case <-time.After(p.delay):
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case ch <- provider.Delta{Role: provider.RoleAssistant, Content: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
