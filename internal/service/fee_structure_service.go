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

type feeStructureRepository interface {
	List(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructure, int, error)
	FindByID(ctx context.Context, id string) (*models.FeeStructure, error)
	ExistsByType(ctx context.Context, feeType, excludeID string) (bool, error)
	Create(ctx context.Context, structure *models.FeeStructure) error
	Update(ctx context.Context, structure *models.FeeStructure) error
	Delete(ctx context.Context, id string) error
	CountSubscriptions(ctx context.Context, structureID string) (int, error)
}

// CreateFeeStructureRequest describes structure creation payload.
type CreateFeeStructureRequest struct {
	Type       string            `json:"type" validate:"required"`
	Amount     decimal.Decimal   `json:"amount"`
	Recurrence models.Recurrence `json:"recurrence" validate:"required"`
	IsDefault  bool              `json:"is_default"`
}

// UpdateFeeStructureRequest describes structure update payload. Edits never
// touch obligations already generated from the structure.
type UpdateFeeStructureRequest struct {
	Type       string            `json:"type" validate:"required"`
	Amount     decimal.Decimal   `json:"amount"`
	Recurrence models.Recurrence `json:"recurrence" validate:"required"`
	IsDefault  bool              `json:"is_default"`
}

// FeeStructureService manages the reusable fee catalog.
type FeeStructureService struct {
	repo      feeStructureRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeStructureService constructs FeeStructureService.
func NewFeeStructureService(repo feeStructureRepository, validate *validator.Validate, logger *zap.Logger) *FeeStructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeStructureService{repo: repo, validator: validate, logger: logger}
}

// List returns fee structures with pagination metadata.
func (s *FeeStructureService) List(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructure, *models.Pagination, error) {
	structures, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee structures")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return structures, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one structure by id.
func (s *FeeStructureService) Get(ctx context.Context, id string) (*models.FeeStructure, error) {
	structure, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	return structure, nil
}

// Create registers a new fee structure. Type is unique across the catalog.
func (s *FeeStructureService) Create(ctx context.Context, req CreateFeeStructureRequest) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee structure payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if !req.Recurrence.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence must be ONCE, MONTHLY or YEARLY")
	}
	exists, err := s.repo.ExistsByType(ctx, req.Type, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate fee structure")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee structure type already exists")
	}

	structure := &models.FeeStructure{
		Type:       req.Type,
		Amount:     req.Amount,
		Recurrence: req.Recurrence,
		IsDefault:  req.IsDefault,
	}
	if err := s.repo.Create(ctx, structure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee structure")
	}
	s.logger.Info("fee structure created", zap.String("structure_id", structure.ID), zap.String("type", structure.Type))
	return structure, nil
}

// Update edits a structure in place. Prices of existing obligations are
// unaffected; only future generation picks up the change.
func (s *FeeStructureService) Update(ctx context.Context, id string, req UpdateFeeStructureRequest) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee structure payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if !req.Recurrence.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence must be ONCE, MONTHLY or YEARLY")
	}
	structure, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	exists, err := s.repo.ExistsByType(ctx, req.Type, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate fee structure")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee structure type already exists")
	}

	structure.Type = req.Type
	structure.Amount = req.Amount
	structure.Recurrence = req.Recurrence
	structure.IsDefault = req.IsDefault
	if err := s.repo.Update(ctx, structure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee structure")
	}
	s.logger.Info("fee structure updated", zap.String("structure_id", id))
	return structure, nil
}

// Delete removes a structure. A structure with subscriptions cannot be
// deleted; obligations already generated from it are never touched.
func (s *FeeStructureService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	count, err := s.repo.CountSubscriptions(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subscriptions")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "fee structure has active subscriptions")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee structure")
	}
	s.logger.Info("fee structure deleted", zap.String("structure_id", id))
	return nil
}
