package echo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-gateway/chatstream-go/internal/provider"
)

func TestEchoWordByWord(t *testing.T) {
	req := &provider.Params{Messages: []provider.Message{
		{Role: provider.RoleUser, Content: "first"},
		{Role: provider.RoleAssistant, Content: "ignored"},
		{Role: provider.RoleUser, Content: "hello  world"},
	}}
	ch, err := New(0).Chat(context.Background(), req)
	require.NoError(t, err)

	var parts []string
	for d := range ch {
		assert.Equal(t, provider.RoleAssistant, d.Role)
		parts = append(parts, d.Content)
	}
	assert.Equal(t, []string{"Echo:", " hello", " world"}, parts)
	assert.Equal(t, "Echo: hello world", strings.Join(parts, ""))
}

func TestEchoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &provider.Params{Messages: []provider.Message{{Role: provider.RoleUser, Content: "a b c d e"}}}
	ch, err := New(50*time.Millisecond).Chat(ctx, req)
	require.NoError(t, err)

	<-ch
	cancel()
	n := 0
	for range ch {
		n++
	}
	assert.LessOrEqual(t, n, 1)
}
