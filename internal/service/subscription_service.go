package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type subscriptionRepository interface {
	List(ctx context.Context, filter models.SubscriptionFilter) ([]models.SubscriptionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentFeeSubscription, error)
	ExistsPair(ctx context.Context, studentID, structureID string) (bool, error)
	Create(ctx context.Context, subscription *models.StudentFeeSubscription) error
	SetActive(ctx context.Context, id string, active bool) error
	SetCustomAmount(ctx context.Context, id string, amount *decimal.Decimal) error
	Delete(ctx context.Context, id string) error
}

type structureReader interface {
	FindByID(ctx context.Context, id string) (*models.FeeStructure, error)
}

// SubscribeStudentRequest describes subscription creation payload.
type SubscribeStudentRequest struct {
	StudentID    string           `json:"student_id" validate:"required"`
	StructureID  string           `json:"structure_id" validate:"required"`
	CustomAmount *decimal.Decimal `json:"custom_amount,omitempty"`
}

// SubscriptionService binds students to the fee catalog.
type SubscriptionService struct {
	repo       subscriptionRepository
	students   studentReader
	structures structureReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSubscriptionService constructs SubscriptionService.
func NewSubscriptionService(repo subscriptionRepository, students studentReader, structures structureReader, validate *validator.Validate, logger *zap.Logger) *SubscriptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{repo: repo, students: students, structures: structures, validator: validate, logger: logger}
}

// List returns subscriptions with pagination metadata.
func (s *SubscriptionService) List(ctx context.Context, filter models.SubscriptionFilter) ([]models.SubscriptionDetail, *models.Pagination, error) {
	subscriptions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subscriptions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return subscriptions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Subscribe binds a student to a structure. Each student subscribes to a
// given structure at most once; an inactive duplicate still blocks.
func (s *SubscriptionService) Subscribe(ctx context.Context, req SubscribeStudentRequest) (*models.StudentFeeSubscription, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subscription payload")
	}
	if req.CustomAmount != nil && !req.CustomAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "custom amount must be positive")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.structures.FindByID(ctx, req.StructureID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	exists, err := s.repo.ExistsPair(ctx, req.StudentID, req.StructureID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subscription")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already subscribed to fee structure")
	}

	subscription := &models.StudentFeeSubscription{
		StudentID:    req.StudentID,
		StructureID:  req.StructureID,
		CustomAmount: req.CustomAmount,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, subscription); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subscription")
	}
	s.logger.Info("student subscribed",
		zap.String("subscription_id", subscription.ID),
		zap.String("student_id", req.StudentID),
		zap.String("structure_id", req.StructureID))
	return subscription, nil
}

// SetActive pauses or resumes generation for a subscription. The watermark
// is untouched, so resuming never backfills paused periods.
func (s *SubscriptionService) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subscription not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subscription")
	}
	s.logger.Info("subscription state changed", zap.String("subscription_id", id), zap.Bool("active", active))
	return nil
}

// SetCustomAmount sets or clears the per-student override. Future
// generations pick it up; existing obligations keep their amount.
func (s *SubscriptionService) SetCustomAmount(ctx context.Context, id string, amount *decimal.Decimal) error {
	if amount != nil && !amount.IsPositive() {
		return appErrors.Clone(appErrors.ErrValidation, "custom amount must be positive")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subscription not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if err := s.repo.SetCustomAmount(ctx, id, amount); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subscription")
	}
	s.logger.Info("subscription amount override changed", zap.String("subscription_id", id))
	return nil
}

// Delete removes a subscription. Obligations generated from it survive.
func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "subscription not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subscription")
	}
	s.logger.Info("subscription deleted", zap.String("subscription_id", id))
	return nil
}
