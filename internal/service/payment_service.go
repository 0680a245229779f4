package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type creditAllocator interface {
	Allocate(ctx context.Context, studentID, targetFeeID string, amount, discount decimal.Decimal, date time.Time) ([]models.Credit, error)
	ListCreditsByStudent(ctx context.Context, studentID string) ([]models.CreditDetail, error)
	FindCreditByID(ctx context.Context, id string) (*models.Credit, error)
	DeleteCredit(ctx context.Context, id string) error
}

type allocationRecorder interface {
	RecordAllocation(outcome string)
}

// AllocateCreditRequest is the payload for recording a payment, a discount,
// or both in one call.
type AllocateCreditRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	FeeID     string          `json:"fee_id"`
	Amount    decimal.Decimal `json:"amount"`
	Discount  decimal.Decimal `json:"discount"`
	Date      *time.Time      `json:"date"`
}

// AllocationResult reports the credits written by one allocation call.
type AllocationResult struct {
	Credits        []models.Credit `json:"credits"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	Message        string          `json:"message,omitempty"`
}

// PaymentService records payments and discounts against a student's ledger.
type PaymentService struct {
	fees      creditAllocator
	students  studentReader
	metrics   allocationRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(fees creditAllocator, students studentReader, metrics allocationRecorder, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{fees: fees, students: students, metrics: metrics, validator: validate, logger: logger}
}

// Allocate validates the request and distributes amount plus discount over
// the student's obligations. A FeeID targets a single obligation; without it
// the engine spreads the credit earliest due date first.
func (s *PaymentService) Allocate(ctx context.Context, req AllocateCreditRequest) (*AllocationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation payload")
	}
	if req.Amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}
	if req.Discount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount must not be negative")
	}
	if !req.Amount.Add(req.Discount).IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount and discount must sum to a positive value")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = req.Date.UTC()
	}

	credits, err := s.fees.Allocate(ctx, req.StudentID, req.FeeID, req.Amount, req.Discount, date)
	if err != nil {
		var overErr *ledger.OverallocationError
		switch {
		case errors.As(err, &overErr):
			s.record("overallocation")
			return nil, appErrors.WithContext(appErrors.ErrOverallocation, overErr.Error(), map[string]interface{}{
				"requested": overErr.Requested.String(),
				"available": overErr.Available.String(),
			})
		case err == sql.ErrNoRows:
			s.record("not_found")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found for student")
		default:
			s.record("error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate credit")
		}
	}

	result := &AllocationResult{Credits: credits, TotalAllocated: decimal.Zero}
	for _, c := range credits {
		result.TotalAllocated = result.TotalAllocated.Add(c.Amount)
	}
	if len(credits) == 0 {
		result.Message = "no outstanding fees; nothing allocated"
	}

	s.record("success")
	s.logger.Info("credit allocated",
		zap.String("student_id", req.StudentID),
		zap.String("fee_id", req.FeeID),
		zap.String("total", result.TotalAllocated.String()),
		zap.Int("credits", len(credits)))
	return result, nil
}

// ListCredits returns the student's full credit history.
func (s *PaymentService) ListCredits(ctx context.Context, studentID string) ([]models.CreditDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	credits, err := s.fees.ListCreditsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credits")
	}
	return credits, nil
}

// DeleteCredit reverses a recorded credit. Balances are derived, so removal
// restores the fee's outstanding amount on the next read.
func (s *PaymentService) DeleteCredit(ctx context.Context, id string) error {
	if err := s.fees.DeleteCredit(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "credit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete credit")
	}
	s.logger.Info("credit deleted", zap.String("credit_id", id))
	return nil
}

func (s *PaymentService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAllocation(outcome)
	}
}
