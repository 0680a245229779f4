package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/service"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// GenerationHandler exposes the manual trigger for the recurring fee
// scheduler. The same pass also runs on the background ticker.
type GenerationHandler struct {
	generation *service.GenerationService
}

// NewGenerationHandler constructs GenerationHandler.
func NewGenerationHandler(generation *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{generation: generation}
}

// Run godoc
// @Summary Run one recurring fee generation pass
// @Tags Generation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/generation/run [post]
func (h *GenerationHandler) Run(c *gin.Context) {
	result, err := h.generation.RunPass(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
