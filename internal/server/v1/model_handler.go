package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ModelHandler struct {
	gw Gateway
}

func NewModelHandler(gw Gateway) *ModelHandler {
	return &ModelHandler{gw: gw}
}

// ListModels returns the static model listing for the active backend.
func (h *ModelHandler) ListModels(c *gin.Context) {
	_, provider := h.gw.ActiveBackend()

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   provider.Models(),
	})
}
