package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// FeeStructureHandler exposes the fee catalog endpoints.
type FeeStructureHandler struct {
	structures *service.FeeStructureService
}

// NewFeeStructureHandler constructs FeeStructureHandler.
func NewFeeStructureHandler(structures *service.FeeStructureService) *FeeStructureHandler {
	return &FeeStructureHandler{structures: structures}
}

// List godoc
// @Summary List fee structures
// @Tags FeeStructures
// @Produce json
// @Param recurrence query string false "Filter by recurrence"
// @Param default query bool false "Filter by default flag"
// @Param search query string false "Search by type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fee-structures [get]
func (h *FeeStructureHandler) List(c *gin.Context) {
	var filter models.FeeStructureFilter
	filter.Recurrence = models.Recurrence(strings.ToUpper(c.Query("recurrence")))
	filter.Search = c.Query("search")
	if raw := c.Query("default"); raw != "" {
		if isDefault, err := strconv.ParseBool(raw); err == nil {
			filter.IsDefault = &isDefault
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	structures, pagination, err := h.structures.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structures, pagination)
}

// Get godoc
// @Summary Get fee structure
// @Tags FeeStructures
// @Produce json
// @Param id path string true "Structure ID"
// @Success 200 {object} response.Envelope
// @Router /fee-structures/{id} [get]
func (h *FeeStructureHandler) Get(c *gin.Context) {
	structure, err := h.structures.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Create godoc
// @Summary Create fee structure
// @Tags FeeStructures
// @Accept json
// @Produce json
// @Param payload body service.CreateFeeStructureRequest true "Structure payload"
// @Success 201 {object} response.Envelope
// @Router /fee-structures [post]
func (h *FeeStructureHandler) Create(c *gin.Context) {
	var req service.CreateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.structures.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, structure)
}

// Update godoc
// @Summary Update fee structure
// @Tags FeeStructures
// @Accept json
// @Produce json
// @Param id path string true "Structure ID"
// @Param payload body service.UpdateFeeStructureRequest true "Structure payload"
// @Success 200 {object} response.Envelope
// @Router /fee-structures/{id} [put]
func (h *FeeStructureHandler) Update(c *gin.Context) {
	var req service.UpdateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.structures.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Delete godoc
// @Summary Delete fee structure
// @Tags FeeStructures
// @Produce json
// @Param id path string true "Structure ID"
// @Success 204
// @Router /fee-structures/{id} [delete]
func (h *FeeStructureHandler) Delete(c *gin.Context) {
	if err := h.structures.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
