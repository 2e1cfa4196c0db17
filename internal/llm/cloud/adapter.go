// Package cloud implements the managed-cloud backend: an OpenAI-shaped
// chat-completions API behind bearer-token auth, translated to and from the
// Anthropic Messages envelope.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/httpclient"
	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/pkg/api"
)

func init() {
	llm.Register(config.TypeManagedCloud, NewAdapter)
}

const (
	defaultBaseURL = "https://api.cerebras.ai/v1"
	defaultModel   = "qwen-3-coder-480b"
	requestTimeout = 30 * time.Second
)

type Adapter struct {
	name   string
	cfg    config.BackendConfig
	client *http.Client
}

func NewAdapter(name string, cfg config.BackendConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, api.ConfigError(fmt.Sprintf("backend %q: managed-cloud requires a non-empty api_key", name))
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Adapter{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}, nil
}

func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Type() string { return config.TypeManagedCloud }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the provider-native request body. Options left unset by the
// caller are omitted entirely rather than sent as null.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Complete(ctx context.Context, req *api.MessagesRequest) (*api.MessageResponse, error) {
	body := chatRequest{
		// The CLI asks for Anthropic model names the cloud API does not
		// know; the configured model always wins.
		Model:       a.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content.Flatten()})
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(a.cfg.APIURL, "/"))

	var cr chatResponse
	if err := httpclient.SendRequest(ctx, a.client, "POST", url, headers, body, &cr); err != nil {
		return nil, a.classify(err)
	}

	if len(cr.Choices) == 0 {
		return nil, api.ProtocolError(
			"managed-cloud backend returned a response with no choices",
			"Check the backend provider's status page and logs",
		)
	}

	choice := cr.Choices[0]
	stopReason := choice.FinishReason
	if stopReason == "stop" || stopReason == "" {
		stopReason = "end_turn"
	}

	id := cr.ID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}

	model := cr.Model
	if model == "" {
		model = a.cfg.Model
	}

	return &api.MessageResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    []api.ContentBlock{{Type: "text", Text: choice.Message.Content}},
		Model:      model,
		StopReason: stopReason,
		Usage: api.Usage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
		},
	}, nil
}

func (a *Adapter) Models() []api.ModelInfo {
	return []api.ModelInfo{{
		ID:      a.cfg.Model,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: "anthropic",
		Type:    "text",
	}}
}

// classify maps a transport failure to the proxy's error taxonomy. The
// configured credential must never appear in anything classify returns.
func (a *Adapter) classify(err error) error {
	var ue *httpclient.UpstreamError
	if errors.As(err, &ue) {
		detail := a.scrub(upstreamDetail(ue.Body))
		switch ue.StatusCode {
		case http.StatusUnauthorized:
			return api.AuthError(
				"authentication failed: the managed-cloud backend rejected the configured credential",
				fmt.Sprintf("Verify the api_key configured for backend %q", a.name),
				"Switch to a self-hosted backend",
			).WithLog(err)
		case http.StatusTooManyRequests:
			return api.RateLimitError(
				"rate limited by the managed-cloud backend",
				"Wait before retrying",
				"Switch to a self-hosted backend",
			).WithLog(err)
		case http.StatusServiceUnavailable:
			return api.UnavailableError(
				"managed-cloud backend is temporarily unavailable (503)",
				"Retry shortly",
				"Switch to a self-hosted backend",
			).WithLog(err)
		default:
			return api.ProtocolError(
				fmt.Sprintf("managed-cloud backend returned HTTP %d: %s", ue.StatusCode, detail),
				"Check the backend provider's status page and logs",
			).WithLog(err)
		}
	}

	if isTimeout(err) {
		return api.TimeoutError(
			fmt.Sprintf("request to the managed-cloud backend timed out after %s", requestTimeout),
			"Retry shortly",
			"Switch to a self-hosted backend",
		).WithLog(err)
	}

	return api.UnavailableError(
		"cannot reach the managed-cloud backend: "+a.scrub(err.Error()),
		"Check your network connection",
		"Switch to a self-hosted backend",
	).WithLog(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// scrub removes the credential from text destined for clients or logs.
func (a *Adapter) scrub(s string) string {
	return strings.ReplaceAll(s, a.cfg.APIKey, "[redacted]")
}

// upstreamDetail extracts a human-readable message from the common error body
// shapes: {"error":{"message":...}}, {"error":"..."} and {"detail":"..."}.
func upstreamDetail(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &flat) == nil {
		if flat.Error != "" {
			return flat.Error
		}
		if flat.Detail != "" {
			return flat.Detail
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}
