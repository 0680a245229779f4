package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCreditAllocator struct {
	credits    []models.Credit
	details    []models.CreditDetail
	err        error
	deleted    []string
	lastAmount decimal.Decimal
}

func (m *mockCreditAllocator) Allocate(ctx context.Context, studentID, targetFeeID string, amount, discount decimal.Decimal, date time.Time) ([]models.Credit, error) {
	m.lastAmount = amount
	if m.err != nil {
		return nil, m.err
	}
	return m.credits, nil
}

func (m *mockCreditAllocator) ListCreditsByStudent(ctx context.Context, studentID string) ([]models.CreditDetail, error) {
	return m.details, nil
}

func (m *mockCreditAllocator) FindCreditByID(ctx context.Context, id string) (*models.Credit, error) {
	for _, c := range m.credits {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCreditAllocator) DeleteCredit(ctx context.Context, id string) error {
	for _, c := range m.credits {
		if c.ID == id {
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func newPaymentFixture(allocator *mockCreditAllocator) (*PaymentService, *mockStudentReader) {
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Siti Rahma", Active: true},
	}}
	return NewPaymentService(allocator, students, nil, nil, nil), students
}

func TestPaymentAllocateSuccess(t *testing.T) {
	allocator := &mockCreditAllocator{credits: []models.Credit{
		{ID: "c1", FeeID: "fee-1", Amount: decimal.RequireFromString("100"), Type: models.CreditTypePayment},
		{ID: "c2", FeeID: "fee-2", Amount: decimal.RequireFromString("20"), Type: models.CreditTypePayment},
	}}
	svc, _ := newPaymentFixture(allocator)

	result, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "stu-1",
		Amount:    decimal.RequireFromString("120"),
	})
	require.NoError(t, err)
	require.Len(t, result.Credits, 2)
	assert.True(t, result.TotalAllocated.Equal(decimal.RequireFromString("120")))
	assert.Empty(t, result.Message)
}

func TestPaymentAllocateRejectsNegativeAmount(t *testing.T) {
	svc, _ := newPaymentFixture(&mockCreditAllocator{})

	_, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "stu-1",
		Amount:    decimal.RequireFromString("-5"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentAllocateRejectsZeroTotal(t *testing.T) {
	svc, _ := newPaymentFixture(&mockCreditAllocator{})

	_, err := svc.Allocate(context.Background(), AllocateCreditRequest{StudentID: "stu-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentAllocateUnknownStudent(t *testing.T) {
	svc, _ := newPaymentFixture(&mockCreditAllocator{})

	_, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "missing",
		Amount:    decimal.RequireFromString("10"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPaymentAllocateMapsOverallocation(t *testing.T) {
	allocator := &mockCreditAllocator{err: &ledger.OverallocationError{
		Requested: decimal.RequireFromString("200"),
		Available: decimal.RequireFromString("150"),
	}}
	svc, _ := newPaymentFixture(allocator)

	_, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "stu-1",
		Amount:    decimal.RequireFromString("200"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrOverallocation.Code, appErr.Code)
	assert.Equal(t, "200", appErr.Context["requested"])
	assert.Equal(t, "150", appErr.Context["available"])
}

func TestPaymentAllocateUnknownTargetFee(t *testing.T) {
	allocator := &mockCreditAllocator{err: sql.ErrNoRows}
	svc, _ := newPaymentFixture(allocator)

	_, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "stu-1",
		FeeID:     "missing",
		Amount:    decimal.RequireFromString("10"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPaymentAllocateNothingOutstanding(t *testing.T) {
	svc, _ := newPaymentFixture(&mockCreditAllocator{})

	result, err := svc.Allocate(context.Background(), AllocateCreditRequest{
		StudentID: "stu-1",
		Amount:    decimal.RequireFromString("10"),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Credits)
	assert.True(t, result.TotalAllocated.IsZero())
	assert.NotEmpty(t, result.Message)
}

func TestPaymentDeleteCredit(t *testing.T) {
	allocator := &mockCreditAllocator{credits: []models.Credit{{ID: "c1"}}}
	svc, _ := newPaymentFixture(allocator)

	require.NoError(t, svc.DeleteCredit(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, allocator.deleted)

	err := svc.DeleteCredit(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
