package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type defaultStructureLister interface {
	ListDefaults(ctx context.Context) ([]models.FeeStructure, error)
}

type subscriptionWriter interface {
	Create(ctx context.Context, subscription *models.StudentFeeSubscription) error
}

// CreateStudentRequest describes student registration payload.
type CreateStudentRequest struct {
	FullName string `json:"full_name" validate:"required"`
	NIS      string `json:"nis" validate:"required"`
	ClassID  string `json:"class_id" validate:"required"`
}

// UpdateStudentRequest describes student update payload.
type UpdateStudentRequest struct {
	FullName string `json:"full_name" validate:"required"`
	NIS      string `json:"nis" validate:"required"`
	ClassID  string `json:"class_id" validate:"required"`
	Active   *bool  `json:"active"`
}

// StudentService manages the student directory the ledger charges against.
type StudentService struct {
	repo          studentRepository
	structures    defaultStructureLister
	subscriptions subscriptionWriter
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, structures defaultStructureLister, subscriptions subscriptionWriter, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, structures: structures, subscriptions: subscriptions, validator: validate, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student and subscribes them to every default fee
// structure. A failed default subscription does not roll back the student;
// it is logged and can be added manually.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		FullName: req.FullName,
		NIS:      req.NIS,
		ClassID:  req.ClassID,
		Active:   true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	defaults, err := s.structures.ListDefaults(ctx)
	if err != nil {
		s.logger.Warn("failed to list default structures for auto-subscribe",
			zap.String("student_id", student.ID), zap.Error(err))
		return student, nil
	}
	for _, structure := range defaults {
		subscription := &models.StudentFeeSubscription{
			StudentID:   student.ID,
			StructureID: structure.ID,
			IsActive:    true,
		}
		if err := s.subscriptions.Create(ctx, subscription); err != nil {
			s.logger.Warn("failed to auto-subscribe default structure",
				zap.String("student_id", student.ID),
				zap.String("structure_id", structure.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("student created",
		zap.String("student_id", student.ID),
		zap.Int("default_subscriptions", len(defaults)))
	return student, nil
}

// Update edits a student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student.FullName = req.FullName
	student.NIS = req.NIS
	student.ClassID = req.ClassID
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.logger.Info("student updated", zap.String("student_id", id))
	return student, nil
}
