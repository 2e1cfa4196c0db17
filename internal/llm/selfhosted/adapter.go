// Package selfhosted implements the pass-through backend: an endpoint that
// already speaks the Anthropic Messages envelope, typically an inference box
// reached over an SSH tunnel.
package selfhosted

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/httpclient"
	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/pkg/api"
)

func init() {
	llm.Register(config.TypeSelfHosted, NewAdapter)
}

// Self-hosted inference can stall for a long time while a model loads, so the
// request timeout is generous and the health probe is short. Both bounds are
// correctness requirements: without them a loading model hangs the caller
// indefinitely.
const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second

	defaultModel = "qwen2.5-coder:7b"
)

type Adapter struct {
	name         string
	cfg          config.BackendConfig
	base         string
	client       *http.Client
	healthClient *http.Client
}

func NewAdapter(name string, cfg config.BackendConfig) (llm.Provider, error) {
	if cfg.URL == "" {
		return nil, api.ConfigError(fmt.Sprintf("backend %q: self-hosted requires a url", name))
	}
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, api.ConfigError(fmt.Sprintf("backend %q: self-hosted url %q is not a valid URL", name, cfg.URL))
	}

	return &Adapter{
		name:         name,
		cfg:          cfg,
		base:         strings.TrimRight(cfg.URL, "/"),
		client:       &http.Client{Timeout: requestTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return config.TypeSelfHosted }

// Complete forwards the payload unmodified; the self-hosted side already
// emits Anthropic-compatible JSON, so no translation happens here.
func (a *Adapter) Complete(ctx context.Context, req *api.MessagesRequest) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	url := a.base + "/v1/messages"

	if err := httpclient.SendRequest(ctx, a.client, "POST", url, nil, req, &resp); err != nil {
		return nil, a.classify(err)
	}

	if len(resp.Content) == 0 {
		return nil, api.ProtocolError(
			"self-hosted backend returned a response that does not match the Messages envelope",
			"Check the logs of the self-hosted proxy",
		)
	}

	return &resp, nil
}

// Health probes {url}/health. It never returns an error; unreachability is
// reported as an unhealthy status instead.
func (a *Adapter) Health(ctx context.Context) api.BackendHealth {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", a.base+"/health", nil)
	if err != nil {
		return a.unhealthy()
	}

	resp, err := a.healthClient.Do(req)
	if err != nil {
		return a.unhealthy()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return a.unhealthy()
	}

	return api.BackendHealth{Status: api.HealthHealthy, Endpoint: a.cfg.URL}
}

func (a *Adapter) unhealthy() api.BackendHealth {
	return api.BackendHealth{
		Status:   api.HealthUnhealthy,
		Error:    "Cannot connect to proxy",
		Endpoint: a.cfg.URL,
	}
}

func (a *Adapter) Models() []api.ModelInfo {
	return []api.ModelInfo{{
		ID:      defaultModel,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: "anthropic",
		Type:    "text",
	}}
}

func (a *Adapter) classify(err error) error {
	var ue *httpclient.UpstreamError
	if errors.As(err, &ue) {
		body := strings.ToLower(string(ue.Body))
		if strings.Contains(body, "model") && strings.Contains(body, "not found") {
			return api.ProtocolError(
				"self-hosted backend reported that the requested model is not available",
				"Pull the model on the backend host (e.g. `ollama pull <model>`)",
				"Check which models the backend serves",
			).WithLog(err)
		}
		if ue.StatusCode == http.StatusServiceUnavailable {
			return api.UnavailableError(
				"self-hosted backend is temporarily unavailable (503)",
				"Check that the inference server is running",
				"Switch to the managed-cloud backend",
			).WithLog(err)
		}
		detail := strings.TrimSpace(string(ue.Body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return api.ProtocolError(
			fmt.Sprintf("self-hosted backend returned HTTP %d: %s", ue.StatusCode, detail),
			"Check the logs of the self-hosted proxy",
		).WithLog(err)
	}

	if isTimeout(err) {
		return api.TimeoutError(
			fmt.Sprintf("request to the self-hosted backend timed out after %s; the model may still be loading", requestTimeout),
			"Wait for the model to finish loading and retry",
			"Switch to the managed-cloud backend",
		).WithLog(err)
	}

	return api.UnavailableError(
		fmt.Sprintf("cannot connect to the self-hosted backend at %s", a.base),
		"Check that the inference server is running",
		"Verify the SSH tunnel is established",
		"Switch to the managed-cloud backend",
	).WithLog(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
