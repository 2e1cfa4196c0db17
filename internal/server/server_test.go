package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/server"
	"github.com/ephram/relay/pkg/api"

	_ "github.com/ephram/relay/internal/llm/cloud"
	_ "github.com/ephram/relay/internal/llm/selfhosted"
)

const envelope = `{
	"id": "msg_test",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "pong"}],
	"model": "qwen2.5-coder:7b",
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 3, "output_tokens": 1}
}`

// mockBackend is a fake self-hosted endpoint that counts inference calls.
type mockBackend struct {
	*httptest.Server
	calls atomic.Int64
}

func newMockBackend(t *testing.T) *mockBackend {
	t.Helper()
	mb := &mockBackend{}
	mb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/messages":
			mb.calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(envelope))
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(mb.Close)
	return mb
}

func selfHostedConfig(name, url string) *config.Config {
	return &config.Config{
		Backend: name,
		Port:    config.AutoPort,
		Backends: map[string]config.BackendConfig{
			name: {Type: config.TypeSelfHosted, URL: url},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *server.Server {
	t.Helper()
	srv, err := server.New(cfg, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestCreateMessage(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	w, body := doJSON(t, srv.Handler(), "POST", "/v1/messages", map[string]interface{}{
		"messages": []map[string]interface{}{{"role": "user", "content": "ping"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "msg_test", body["id"])
	assert.Equal(t, "end_turn", body["stop_reason"])
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestCreateMessageValidation(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	cases := []interface{}{
		map[string]interface{}{},
		map[string]interface{}{"messages": []interface{}{}},
		map[string]interface{}{"messages": "not-an-array"},
		map[string]interface{}{"messages": []map[string]interface{}{{"role": "robot", "content": "hi"}}},
	}

	for _, payload := range cases {
		w, body := doJSON(t, srv.Handler(), "POST", "/v1/messages", payload)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body["error"], "messages")
	}

	// Invalid requests never reach the backend.
	assert.Equal(t, int64(0), backend.calls.Load())
}

func TestRootLiveness(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	w, body := doJSON(t, srv.Handler(), "GET", "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "relay", body["service"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "local", body["backend"])
}

func TestHealthHealthy(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	w, body := doJSON(t, srv.Handler(), "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	bh := body["backendHealth"].(map[string]interface{})
	assert.Equal(t, api.HealthHealthy, bh["status"])
}

func TestHealthDegradedNeverErrors(t *testing.T) {
	backend := newMockBackend(t)
	url := backend.URL
	backend.Close() // backend gone before the probe

	srv := newTestServer(t, selfHostedConfig("local", url))

	w, body := doJSON(t, srv.Handler(), "GET", "/health", nil)

	// An unreachable backend degrades the report but the endpoint stays 200.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", body["status"])

	bh := body["backendHealth"].(map[string]interface{})
	assert.Equal(t, api.HealthUnhealthy, bh["status"])
	assert.Equal(t, "Cannot connect to proxy", bh["error"])
}

func TestHealthUnknownWithoutProbe(t *testing.T) {
	// The managed-cloud backend has no health probe; the report says so
	// without degrading the service status.
	cfg := &config.Config{
		Backend: "cloud",
		Port:    config.AutoPort,
		Backends: map[string]config.BackendConfig{
			"cloud": {Type: config.TypeManagedCloud, APIKey: "csk-test"},
		},
	}
	srv := newTestServer(t, cfg)

	w, body := doJSON(t, srv.Handler(), "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	bh := body["backendHealth"].(map[string]interface{})
	assert.Equal(t, api.HealthUnknown, bh["status"])
}

func TestListModels(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	w, body := doJSON(t, srv.Handler(), "GET", "/v1/models", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "list", body["object"])
	assert.NotEmpty(t, body["data"])
}

func TestSwitchBackend(t *testing.T) {
	a := newMockBackend(t)
	b := newMockBackend(t)

	cfg := &config.Config{
		Backend: "a",
		Port:    config.AutoPort,
		Backends: map[string]config.BackendConfig{
			"a": {Type: config.TypeSelfHosted, URL: a.URL},
			"b": {Type: config.TypeSelfHosted, URL: b.URL},
		},
	}
	srv := newTestServer(t, cfg)

	w, body := doJSON(t, srv.Handler(), "POST", "/admin/backend", map[string]string{"name": "b"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", body["backend"])

	w, _ = doJSON(t, srv.Handler(), "POST", "/v1/messages", map[string]interface{}{
		"messages": []map[string]interface{}{{"role": "user", "content": "ping"}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), a.calls.Load())
	assert.Equal(t, int64(1), b.calls.Load())
}

func TestSwitchBackendUnknown(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	w, body := doJSON(t, srv.Handler(), "POST", "/admin/backend", map[string]string{"name": "ghost"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "ghost")

	// The active backend is untouched after a failed switch.
	name, _ := srv.ActiveBackend()
	assert.Equal(t, "local", name)
}

func TestReload(t *testing.T) {
	// Keep the loader away from the real per-user file.
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvOverride, "")

	a := newMockBackend(t)
	b := newMockBackend(t)

	workspace := t.TempDir()
	writeConfig := func(backendName, url string) {
		cfg := selfHostedConfig(backendName, url)
		require.NoError(t, config.Save(cfg, filepath.Join(workspace, config.ConfigFileName)))
	}
	writeConfig("a", a.URL)

	cfg, err := config.Load(workspace)
	require.NoError(t, err)

	srv, err := server.New(cfg, workspace, zap.NewNop())
	require.NoError(t, err)

	writeConfig("b", b.URL)

	w, body := doJSON(t, srv.Handler(), "POST", "/admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", body["backend"])

	name, _ := srv.ActiveBackend()
	assert.Equal(t, "b", name)
}

func TestReloadInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvOverride, "")

	backend := newMockBackend(t)
	workspace := t.TempDir()

	srv, err := server.New(selfHostedConfig("local", backend.URL), workspace, zap.NewNop())
	require.NoError(t, err)

	// A broken project file must not disturb the running backend.
	path := filepath.Join(workspace, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"backend": "missing"}`), 0o644))

	w, _ := doJSON(t, srv.Handler(), "POST", "/admin/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	name, _ := srv.ActiveBackend()
	assert.Equal(t, "local", name)
}

func TestStartAutoPort(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	port, baseURL, err := srv.Start()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, srv.Stop(context.Background()))
	}()

	assert.GreaterOrEqual(t, port, config.PortRangeStart)
	assert.LessOrEqual(t, port, config.PortRangeEnd)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", port), baseURL)
	assert.Equal(t, port, srv.Port())

	resp, err := http.Get(baseURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartBindHost(t *testing.T) {
	backend := newMockBackend(t)
	cfg := selfHostedConfig("local", backend.URL)
	cfg.Host = "127.0.0.1"
	srv := newTestServer(t, cfg)

	port, baseURL, err := srv.Start()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, srv.Stop(context.Background()))
	}()

	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", port), baseURL)

	resp, err := http.Get(baseURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStopWithoutStart(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	assert.NoError(t, srv.Stop(context.Background()))
}

func TestStartAfterStop(t *testing.T) {
	backend := newMockBackend(t)
	srv := newTestServer(t, selfHostedConfig("local", backend.URL))

	require.NoError(t, srv.Stop(context.Background()))

	_, _, err := srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}
