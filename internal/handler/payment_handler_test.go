package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/service"
)

type stubStudents struct{}

func (stubStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if id == "stu-1" {
		return &models.Student{ID: "stu-1", FullName: "Siti Rahma", Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

type stubAllocator struct {
	credits []models.Credit
	err     error
}

func (s stubAllocator) Allocate(ctx context.Context, studentID, targetFeeID string, amount, discount decimal.Decimal, date time.Time) ([]models.Credit, error) {
	return s.credits, s.err
}

func (s stubAllocator) ListCreditsByStudent(ctx context.Context, studentID string) ([]models.CreditDetail, error) {
	return nil, nil
}

func (s stubAllocator) FindCreditByID(ctx context.Context, id string) (*models.Credit, error) {
	return nil, sql.ErrNoRows
}

func (s stubAllocator) DeleteCredit(ctx context.Context, id string) error {
	return sql.ErrNoRows
}

func paymentRouter(allocator stubAllocator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	payments := service.NewPaymentService(allocator, stubStudents{}, nil, nil, nil)
	h := NewPaymentHandler(payments)
	router := gin.New()
	router.POST("/payments", h.Allocate)
	router.DELETE("/credits/:id", h.DeleteCredit)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPaymentAllocateEndpoint(t *testing.T) {
	router := paymentRouter(stubAllocator{credits: []models.Credit{
		{ID: "c1", FeeID: "fee-1", Amount: decimal.RequireFromString("100"), Type: models.CreditTypePayment},
	}})

	body := bytes.NewBufferString(`{"student_id":"stu-1","amount":"100"}`)
	req, _ := http.NewRequest(http.MethodPost, "/payments", body)
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"total_allocated":"100"`)
}

func TestPaymentAllocateEndpointOverallocation(t *testing.T) {
	router := paymentRouter(stubAllocator{err: &ledger.OverallocationError{
		Requested: decimal.RequireFromString("200"),
		Available: decimal.RequireFromString("150"),
	}})

	body := bytes.NewBufferString(`{"student_id":"stu-1","amount":"200"}`)
	req, _ := http.NewRequest(http.MethodPost, "/payments", body)
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Contains(t, resp.Body.String(), "OVERALLOCATION")
}

func TestPaymentAllocateEndpointUnknownStudent(t *testing.T) {
	router := paymentRouter(stubAllocator{})

	body := bytes.NewBufferString(`{"student_id":"missing","amount":"10"}`)
	req, _ := http.NewRequest(http.MethodPost, "/payments", body)
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPaymentAllocateEndpointRejectsBadPayload(t *testing.T) {
	router := paymentRouter(stubAllocator{})

	body := bytes.NewBufferString(`{"amount":"ten"}`)
	req, _ := http.NewRequest(http.MethodPost, "/payments", body)
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteCreditEndpointNotFound(t *testing.T) {
	router := paymentRouter(stubAllocator{})

	req, _ := http.NewRequest(http.MethodDelete, "/credits/missing", nil)
	resp := performRequest(router, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}
