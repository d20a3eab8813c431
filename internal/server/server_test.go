package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-gateway/chatstream-go/internal/config"
	"github.com/ai-gateway/chatstream-go/internal/orchestrator"
	"github.com/ai-gateway/chatstream-go/internal/provider"
	"github.com/ai-gateway/chatstream-go/internal/reqerr"
	"github.com/ai-gateway/chatstream-go/internal/splitter"
	"github.com/ai-gateway/chatstream-go/internal/sse"
	"github.com/ai-gateway/chatstream-go/internal/transform"
)

func init() { gin.SetMode(gin.TestMode) }

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(&config.Config{}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func chat(content string, stream bool) provider.Params {
	return provider.Params{
		Model:    "echo",
		Stream:   stream,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: content}},
	}
}

func post(t *testing.T, url string, p provider.Params, accept string) *http.Response {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url+"/v1/chat/completions", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestEventStream(t *testing.T) {
	ts := newBackend(t)
	resp := post(t, ts.URL, chat("hi there", true), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sse.ContentType, resp.Header.Get("Content-Type"))

	var data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			data = append(data, line)
		}
	}
	require.Len(t, data, 4)
	assert.JSONEq(t, `{"role":"assistant","content":"Echo:"}`, data[0])
	assert.Equal(t, sse.DoneData, data[3])
}

func TestNonStreaming(t *testing.T) {
	ts := newBackend(t)
	resp := post(t, ts.URL, chat("hi", false), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Choices []provider.Message `json:"choices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "Echo: hi", out.Choices[0].Content)
}

func TestGuardrailsRejectInput(t *testing.T) {
	ts := newBackend(t)
	resp := post(t, ts.URL, chat("some banned text", true), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListModels(t *testing.T) {
	ts := newBackend(t)
	resp, err := http.Get(ts.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Models, 1)
	assert.Equal(t, "echo", out.Models[0].Name)
}

func TestOrchestratorAgainstBackend(t *testing.T) {
	ts := newBackend(t)

	var got []provider.Delta
	var final []provider.Delta
	var failed error
	r, err := orchestrator.New(ts.URL+"/v1/chat/completions",
		orchestrator.WithParams[provider.Delta](chat("one two three", true)),
		orchestrator.WithCallbacks(orchestrator.Callbacks[provider.Delta]{
			OnUpdate:  func(d provider.Delta) { got = append(got, d) },
			OnSuccess: func(all []provider.Delta) { final = all },
			OnError:   func(err error) { failed = err },
		}),
	)
	require.NoError(t, err)
	r.Wait()

	require.NoError(t, failed)
	assert.Equal(t, orchestrator.StateSucceeded, r.State())
	assert.Equal(t, got, final)
	var b strings.Builder
	for _, d := range final {
		b.WriteString(d.Content)
	}
	assert.Equal(t, "Echo: one two three", b.String())
}

func TestOrchestratorNDJSON(t *testing.T) {
	ts := newBackend(t)

	var final []provider.Delta
	r, err := orchestrator.New(ts.URL+"/v1/chat/completions",
		orchestrator.WithParams[provider.Delta](chat("x", true)),
		orchestrator.WithHeaders[provider.Delta](http.Header{"Accept": {contentTypeNDJSON}}),
		orchestrator.WithTransform[provider.Delta](transform.JSON[provider.Delta], splitter.Newline),
		orchestrator.WithCallbacks(orchestrator.Callbacks[provider.Delta]{
			OnSuccess: func(all []provider.Delta) { final = all },
		}),
	)
	require.NoError(t, err)
	r.Wait()

	require.Len(t, final, 3)
	assert.Equal(t, " x", final[1].Content)
	assert.True(t, final[2].Done)
}

func TestOrchestratorBackendRejects(t *testing.T) {
	ts := newBackend(t)

	var failed error
	r, err := orchestrator.New(ts.URL+"/v1/chat/completions",
		orchestrator.WithParams[provider.Delta](chat("banned", true)),
		orchestrator.WithCallbacks(orchestrator.Callbacks[provider.Delta]{
			OnError: func(err error) { failed = err },
		}),
	)
	require.NoError(t, err)
	r.Wait()

	require.Error(t, failed)
	assert.True(t, reqerr.Is(failed, reqerr.NameHTTP))
	var se *reqerr.StatusError
	require.ErrorAs(t, failed, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}
