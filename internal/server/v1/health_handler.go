package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/pkg/api"
)

// HealthGateway extends Gateway with the bound port for health reporting.
type HealthGateway interface {
	Gateway
	Port() int
}

type HealthHandler struct {
	gw      HealthGateway
	version string
}

func NewHealthHandler(gw HealthGateway, version string) *HealthHandler {
	return &HealthHandler{gw: gw, version: version}
}

// Root is the liveness endpoint.
func (h *HealthHandler) Root(c *gin.Context) {
	name, _ := h.gw.ActiveBackend()
	c.JSON(http.StatusOK, gin.H{
		"service":   "relay",
		"status":    "running",
		"backend":   name,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health additionally probes the active backend when it supports health
// checks. A failing backend downgrades the status to "degraded"; the
// endpoint itself always answers 200.
func (h *HealthHandler) Health(c *gin.Context) {
	name, provider := h.gw.ActiveBackend()

	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"backend":   name,
		"port":      h.gw.Port(),
	}

	if hc, ok := provider.(llm.HealthChecker); ok {
		backendHealth := hc.Health(c.Request.Context())
		body["backendHealth"] = backendHealth
		if backendHealth.Status != api.HealthHealthy {
			body["status"] = "degraded"
		}
	} else {
		// Backends without a probe are unknown, never unhealthy.
		body["backendHealth"] = api.BackendHealth{Status: api.HealthUnknown}
	}

	c.JSON(http.StatusOK, body)
}
