package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ephram/relay/internal/analytics"
	"github.com/ephram/relay/pkg/api"
)

type UsageHandler struct {
	analytics analytics.Service
}

func NewUsageHandler(analytics analytics.Service) *UsageHandler {
	return &UsageHandler{analytics: analytics}
}

// Overview returns daily request/token aggregates. GET /v1/usage?days=7
func (h *UsageHandler) Overview(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	stats, err := h.analytics.Overview(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.ProtocolError("failed to read usage statistics").WithLog(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   stats,
	})
}
