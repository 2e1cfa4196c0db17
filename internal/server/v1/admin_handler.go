package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ephram/relay/internal/server/validator"
	"github.com/ephram/relay/pkg/api"
)

// Reconfigurer exposes live backend reconfiguration without a restart.
type Reconfigurer interface {
	Gateway
	Reload() error
	SwitchBackend(name string) error
}

type AdminHandler struct {
	svc Reconfigurer
}

func NewAdminHandler(svc Reconfigurer) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Reload re-runs the configuration loader and re-derives the active backend.
func (h *AdminHandler) Reload(c *gin.Context) {
	if err := h.svc.Reload(); err != nil {
		_ = c.Error(err)
		return
	}

	name, _ := h.svc.ActiveBackend()
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "backend": name})
}

type switchRequest struct {
	Name string `json:"name" binding:"required"`
}

// SwitchBackend activates a different configured backend.
func (h *AdminHandler) SwitchBackend(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(
			`invalid request: "name" is required`,
			validator.ParseError(err),
		))
		return
	}

	if err := h.svc.SwitchBackend(req.Name); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "switched", "backend": req.Name})
}
