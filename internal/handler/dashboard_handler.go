package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/service"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// DashboardHandler exposes collection reporting endpoints.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Collection godoc
// @Summary Collection dashboard with per-class summaries
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/collection [get]
func (h *DashboardHandler) Collection(c *gin.Context) {
	dashboard, err := h.dashboard.Collection(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}
