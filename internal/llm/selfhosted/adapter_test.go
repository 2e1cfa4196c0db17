package selfhosted_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/llm/selfhosted"
	"github.com/ephram/relay/pkg/api"
)

const envelope = `{
	"id": "msg_local_1",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "hello from the box"}],
	"model": "qwen2.5-coder:7b",
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 8, "output_tokens": 5}
}`

func newAdapter(t *testing.T, url string) *selfhosted.Adapter {
	t.Helper()
	p, err := selfhosted.NewAdapter("local", config.BackendConfig{
		Type: config.TypeSelfHosted,
		URL:  url,
	})
	require.NoError(t, err)
	return p.(*selfhosted.Adapter)
}

func TestCompletePassThrough(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(envelope))
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	resp, err := adapter.Complete(context.Background(), &api.MessagesRequest{
		Model:    "claude-sonnet-4",
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	require.NoError(t, err)

	// The payload is forwarded as-is, no translation.
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "claude-sonnet-4", gotBody["model"])

	assert.Equal(t, "msg_local_1", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello from the box", resp.Content[0].Text)
	assert.Equal(t, 8, resp.Usage.InputTokens)
}

func TestCompleteMalformedEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unexpected": "shape"}`))
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	_, err := adapter.Complete(context.Background(), &api.MessagesRequest{
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrProtocol, apiErr.Kind)
}

func TestCompleteModelNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model \"qwen2.5-coder:32b\" not found"}`))
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	_, err := adapter.Complete(context.Background(), &api.MessagesRequest{
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrProtocol, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "not available")
	assert.NotEmpty(t, apiErr.Recommendations)
}

func TestCompleteTimeoutHint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.Complete(ctx, &api.MessagesRequest{
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrTimeout, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "loading")
}

func TestCompleteConnectionRefused(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	adapter := newAdapter(t, url)

	_, err := adapter.Complete(context.Background(), &api.MessagesRequest{
		Messages: []api.Message{{Role: "user", Content: api.Content{Text: "hi"}}},
	})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrUnavailable, apiErr.Kind)
}

func TestHealthHealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	health := adapter.Health(context.Background())
	assert.Equal(t, api.HealthHealthy, health.Status)
	assert.Equal(t, upstream.URL, health.Endpoint)
	assert.Empty(t, health.Error)
}

func TestHealthUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	adapter := newAdapter(t, url)

	health := adapter.Health(context.Background())
	assert.Equal(t, api.HealthUnhealthy, health.Status)
	assert.Equal(t, "Cannot connect to proxy", health.Error)
	assert.Equal(t, url, health.Endpoint)
}

func TestHealthNon200(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	adapter := newAdapter(t, upstream.URL)

	health := adapter.Health(context.Background())
	assert.Equal(t, api.HealthUnhealthy, health.Status)
}

func TestNewAdapterRejectsBadURL(t *testing.T) {
	cases := []string{"", "not a url", "localhost:8000", "/just/a/path"}

	for _, raw := range cases {
		_, err := selfhosted.NewAdapter("local", config.BackendConfig{
			Type: config.TypeSelfHosted,
			URL:  raw,
		})
		require.Error(t, err, "url %q should be rejected", raw)

		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, api.ErrConfig, apiErr.Kind)
	}
}
