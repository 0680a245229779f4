package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// PaymentHandler exposes credit allocation endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Allocate godoc
// @Summary Record a payment and/or discount for a student
// @Description Without fee_id the credit is spread across outstanding fees,
// @Description earliest due date first. With fee_id it targets one fee.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.AllocateCreditRequest true "Allocation payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope "Credit exceeds outstanding balance"
// @Router /payments [post]
func (h *PaymentHandler) Allocate(c *gin.Context) {
	var req service.AllocateCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.payments.Allocate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DeleteCredit godoc
// @Summary Reverse a recorded credit
// @Tags Payments
// @Produce json
// @Param id path string true "Credit ID"
// @Success 204
// @Router /credits/{id} [delete]
func (h *PaymentHandler) DeleteCredit(c *gin.Context) {
	if err := h.payments.DeleteCredit(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
