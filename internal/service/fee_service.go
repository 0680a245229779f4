package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type feeRepository interface {
	FindWithCredits(ctx context.Context, id string) (*models.FeeWithCredits, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FeeWithCredits, error)
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeWithCredits, int, error)
	Create(ctx context.Context, fee *models.Fee) error
	BulkCreate(ctx context.Context, fees []models.Fee) error
	Delete(ctx context.Context, id string) (int64, error)
}

type activeClassLister interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// CreateFeeRequest describes a manual one-off charge for one student.
type CreateFeeRequest struct {
	StudentID string          `json:"student_id" validate:"required"`
	Type      string          `json:"type" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date" validate:"required"`
}

// BulkCreateFeesRequest describes one charge applied to every active student
// of a class.
type BulkCreateFeesRequest struct {
	ClassID string          `json:"class_id" validate:"required"`
	Type    string          `json:"type" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date" validate:"required"`
}

// StudentLedger is a student's full fee position with derived totals.
type StudentLedger struct {
	StudentID   string             `json:"student_id"`
	Fees        []models.FeeDetail `json:"fees"`
	Outstanding decimal.Decimal    `json:"outstanding"`
}

// FeeService manages fee obligations and their derived balances.
type FeeService struct {
	repo      feeRepository
	students  studentReader
	classes   activeClassLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeService constructs FeeService.
func NewFeeService(repo feeRepository, students studentReader, classes activeClassLister, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{repo: repo, students: students, classes: classes, validator: validate, logger: logger}
}

// List returns fees matching the filter, balances derived as of now.
func (s *FeeService) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeDetail, *models.Pagination, error) {
	fees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	now := time.Now().UTC()
	details := make([]models.FeeDetail, len(fees))
	for i, f := range fees {
		details[i] = ledger.Detail(f, now)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one fee with its derived balance and credit history.
func (s *FeeService) Get(ctx context.Context, id string) (*models.FeeDetail, error) {
	fee, err := s.repo.FindWithCredits(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	detail := ledger.Detail(*fee, time.Now().UTC())
	return &detail, nil
}

// StudentLedger returns every fee of a student with derived figures and the
// total outstanding balance.
func (s *FeeService) StudentLedger(ctx context.Context, studentID string) (*StudentLedger, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	fees, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student fees")
	}
	now := time.Now().UTC()
	details := make([]models.FeeDetail, len(fees))
	for i, f := range fees {
		details[i] = ledger.Detail(f, now)
	}
	return &StudentLedger{
		StudentID:   studentID,
		Fees:        details,
		Outstanding: ledger.Outstanding(fees),
	}, nil
}

// Create records a manual one-off charge.
func (s *FeeService) Create(ctx context.Context, req CreateFeeRequest) (*models.Fee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	fee := &models.Fee{
		StudentID: req.StudentID,
		Type:      req.Type,
		Amount:    req.Amount,
		DueDate:   req.DueDate.UTC(),
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
	}
	s.logger.Info("fee created",
		zap.String("fee_id", fee.ID),
		zap.String("student_id", fee.StudentID),
		zap.String("amount", fee.Amount.String()))
	return fee, nil
}

// BulkCreate charges every active student of a class in one transaction.
func (s *FeeService) BulkCreate(ctx context.Context, req BulkCreateFeesRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk fee payload")
	}
	if !req.Amount.IsPositive() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	students, err := s.classes.ListActiveByClass(ctx, req.ClassID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class students")
	}
	if len(students) == 0 {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "no active students in class")
	}
	fees := make([]models.Fee, len(students))
	for i, student := range students {
		fees[i] = models.Fee{
			StudentID: student.ID,
			Type:      req.Type,
			Amount:    req.Amount,
			DueDate:   req.DueDate.UTC(),
		}
	}
	if err := s.repo.BulkCreate(ctx, fees); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fees")
	}
	s.logger.Info("bulk fees created",
		zap.String("class_id", req.ClassID),
		zap.Int("count", len(fees)))
	return len(fees), nil
}

// Delete removes an uncredited fee. A fee with credits must have its credits
// reversed first.
func (s *FeeService) Delete(ctx context.Context, id string) error {
	fee, err := s.repo.FindWithCredits(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	if len(fee.Credits) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "fee has credits and cannot be deleted")
	}
	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee")
	}
	if affected == 0 {
		// A credit landed between the read and the delete.
		return appErrors.Clone(appErrors.ErrConflict, "fee has credits and cannot be deleted")
	}
	s.logger.Info("fee deleted", zap.String("fee_id", id))
	return nil
}
