package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

// StatementHandler exposes asynchronous statement export endpoints.
type StatementHandler struct {
	statements *service.StatementService
}

// NewStatementHandler constructs StatementHandler.
func NewStatementHandler(statements *service.StatementService) *StatementHandler {
	return &StatementHandler{statements: statements}
}

type createStatementRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Format    string `json:"format" binding:"required"`
}

// Create godoc
// @Summary Queue a ledger statement export for a student
// @Tags Statements
// @Accept json
// @Produce json
// @Param payload body createStatementRequest true "Statement request"
// @Success 202 {object} response.Envelope
// @Router /statements [post]
func (h *StatementHandler) Create(c *gin.Context) {
	var req createStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	createdBy := ""
	if claims, ok := currentClaims(c); ok {
		createdBy = claims.UserID
	}
	format := models.StatementFormat(strings.ToLower(req.Format))
	job, err := h.statements.CreateJob(c.Request.Context(), req.StudentID, format, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Statement job status
// @Tags Statements
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /statements/{id} [get]
func (h *StatementHandler) Status(c *gin.Context) {
	job, err := h.statements.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a rendered statement via a signed token
// @Tags Statements
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /statements/download/{token} [get]
func (h *StatementHandler) Download(c *gin.Context) {
	file, job, err := h.statements.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("statement_%s%s", job.StudentID, filepath.Ext(file.Name()))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/octet-stream")
	http.ServeContent(c.Writer, c.Request, filename, job.CreatedAt, file)
}
