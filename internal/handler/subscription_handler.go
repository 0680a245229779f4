package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// SubscriptionHandler exposes student fee subscription endpoints.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
}

// NewSubscriptionHandler constructs SubscriptionHandler.
func NewSubscriptionHandler(subscriptions *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type setCustomAmountRequest struct {
	CustomAmount *decimal.Decimal `json:"custom_amount"`
}

// List godoc
// @Summary List subscriptions
// @Tags Subscriptions
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param structureId query string false "Filter by structure"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /subscriptions [get]
func (h *SubscriptionHandler) List(c *gin.Context) {
	var filter models.SubscriptionFilter
	filter.StudentID = c.Query("studentId")
	filter.StructureID = c.Query("structureId")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	subscriptions, pagination, err := h.subscriptions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subscriptions, pagination)
}

// Create godoc
// @Summary Subscribe a student to a fee structure
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param payload body service.SubscribeStudentRequest true "Subscription payload"
// @Success 201 {object} response.Envelope
// @Router /subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req service.SubscribeStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subscription, err := h.subscriptions.Subscribe(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subscription)
}

// SetActive godoc
// @Summary Pause or resume a subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param payload body setActiveRequest true "Active flag"
// @Success 204
// @Router /subscriptions/{id}/active [put]
func (h *SubscriptionHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.subscriptions.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetCustomAmount godoc
// @Summary Set or clear a per-student amount override
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param payload body setCustomAmountRequest true "Override amount, null to clear"
// @Success 204
// @Router /subscriptions/{id}/amount [put]
func (h *SubscriptionHandler) SetCustomAmount(c *gin.Context) {
	var req setCustomAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.subscriptions.SetCustomAmount(c.Request.Context(), c.Param("id"), req.CustomAmount); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 204
// @Router /subscriptions/{id} [delete]
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	if err := h.subscriptions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
