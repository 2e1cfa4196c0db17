package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ephram/relay/internal/analytics"
	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/internal/server/validator"
	"github.com/ephram/relay/internal/store/model"
	"github.com/ephram/relay/pkg/api"
)

// Gateway is what the message handler needs from the running server: a way
// to observe the currently active backend.
type Gateway interface {
	ActiveBackend() (string, llm.Provider)
}

type MessageHandler struct {
	gw        Gateway
	analytics analytics.Service // nil when usage accounting is disabled
}

func NewMessageHandler(gw Gateway, analytics analytics.Service) *MessageHandler {
	return &MessageHandler{gw: gw, analytics: analytics}
}

// CreateMessage handles POST /v1/messages. Malformed bodies are rejected
// here and never reach the backend.
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req api.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(
			`invalid request: "messages" must be a non-empty array`,
			validator.ParseError(err),
		))
		return
	}

	name, provider := h.gw.ActiveBackend()

	start := time.Now()
	resp, err := provider.Complete(c.Request.Context(), &req)
	if err != nil {
		h.record(name, req.Model, nil, time.Since(start))
		_ = c.Error(err)
		return
	}

	h.record(name, resp.Model, resp, time.Since(start))
	c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) record(backend, modelName string, resp *api.MessageResponse, latency time.Duration) {
	if h.analytics == nil {
		return
	}

	rec := &model.RequestRecord{
		ID:        uuid.NewString(),
		Backend:   backend,
		Model:     modelName,
		LatencyMs: latency.Milliseconds(),
		Success:   resp != nil,
		CreatedAt: time.Now().UTC(),
	}
	if resp != nil {
		rec.InputTokens = resp.Usage.InputTokens
		rec.OutputTokens = resp.Usage.OutputTokens
	}

	// Off the request path; the inbound handler never waits on accounting.
	go h.analytics.Record(context.Background(), rec)
}
