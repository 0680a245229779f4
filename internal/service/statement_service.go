package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/export"
	"github.com/noah-isme/sma-fees-api/pkg/jobs"
	"github.com/noah-isme/sma-fees-api/pkg/storage"
)

type statementJobStore interface {
	Create(ctx context.Context, job *models.StatementJob) error
	GetByID(ctx context.Context, id string) (*models.StatementJob, error)
	Update(ctx context.Context, id string, params repository.UpdateStatementJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StatementJob, error)
	Delete(ctx context.Context, id string) error
}

type studentFeeLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.FeeWithCredits, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
	Path(filename string) string
}

type statementRenderer interface {
	Render(data export.Statement) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// StatementConfig tunes statement generation.
type StatementConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StatementService renders per-student ledger statements asynchronously.
// Requests are queued; workers derive the ledger, render the file and attach
// a signed download URL to the job record.
type StatementService struct {
	repo     statementJobStore
	fees     studentFeeLister
	students studentReader
	storage  fileStorage
	csv      statementRenderer
	pdf      statementRenderer
	signer   *storage.SignedURLSigner
	queue    jobEnqueuer
	cfg      StatementConfig
	logger   *zap.Logger
}

// NewStatementService constructs StatementService. The queue is attached
// afterwards via SetQueue because the queue's handler is this service.
func NewStatementService(repo statementJobStore, fees studentFeeLister, students studentReader, store fileStorage, signer *storage.SignedURLSigner, cfg StatementConfig, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &StatementService{
		repo:     repo,
		fees:     fees,
		students: students,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetQueue attaches the worker queue that executes Process.
func (s *StatementService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// CreateJob queues a statement export for a student.
func (s *StatementService) CreateJob(ctx context.Context, studentID string, format models.StatementFormat, createdBy string) (*models.StatementJob, error) {
	if format != models.StatementFormatCSV && format != models.StatementFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "statement generation is disabled")
	}

	job := &models.StatementJob{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Format:    format,
		Status:    models.StatementStatusQueued,
		CreatedBy: createdBy,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create statement job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "statement", Payload: job.ID}); err != nil {
		msg := err.Error()
		status := models.StatementStatusFailed
		_ = s.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{Status: &status, ErrorMessage: &msg})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue statement job")
	}
	s.logger.Info("statement job queued",
		zap.String("job_id", job.ID),
		zap.String("student_id", studentID),
		zap.String("format", string(format)))
	return job, nil
}

// GetStatus returns the current state of a statement job.
func (s *StatementService) GetStatus(ctx context.Context, id string) (*models.StatementJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement job")
	}
	return job, nil
}

// Process is the queue handler: it renders the statement and finalises the
// job row. Returning an error triggers the queue's retry policy.
func (s *StatementService) Process(ctx context.Context, task jobs.Job) error {
	jobID := task.Payload
	if jobID == "" {
		return fmt.Errorf("statement job payload must be a job id")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load statement job %s: %w", jobID, err)
	}

	started := time.Now().UTC()
	processing := models.StatementStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{Status: &processing, StartedAt: &started}); err != nil {
		return fmt.Errorf("mark statement job processing: %w", err)
	}

	relPath, resultURL, err := s.generate(ctx, job)
	finished := time.Now().UTC()
	if err != nil {
		msg := err.Error()
		failed := models.StatementStatusFailed
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{
			Status: &failed, ErrorMessage: &msg, FinishedAt: &finished,
		}); updateErr != nil {
			s.logger.Error("failed to record statement failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	done := models.StatementStatusDone
	if err := s.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{
		Status: &done, FilePath: &relPath, ResultURL: &resultURL, FinishedAt: &finished,
	}); err != nil {
		return fmt.Errorf("finalise statement job: %w", err)
	}
	s.logger.Info("statement rendered",
		zap.String("job_id", job.ID),
		zap.String("student_id", job.StudentID),
		zap.Duration("took", finished.Sub(started)))
	return nil
}

// ResolveDownload validates a signed token and returns the file to stream.
func (s *StatementService) ResolveDownload(ctx context.Context, token string) (*os.File, *models.StatementJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement job")
	}
	if job.Status != models.StatementStatusDone || job.FilePath == nil || *job.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "statement not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open statement file")
	}
	return file, job, nil
}

// Cleanup removes expired statement files and their job rows.
func (s *StatementService) Cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
	jobsDue, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("statement cleanup listing failed", zap.Error(err))
		return
	}
	for _, job := range jobsDue {
		if job.FilePath != nil {
			if err := s.storage.Delete(*job.FilePath); err != nil {
				s.logger.Warn("failed to delete statement file",
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}
		if err := s.repo.Delete(ctx, job.ID); err != nil {
			s.logger.Warn("failed to delete statement job",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("statement file sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("statement files swept", zap.Int("count", len(removed)))
	}
}

func (s *StatementService) generate(ctx context.Context, job *models.StatementJob) (relPath, resultURL string, err error) {
	student, err := s.students.FindByID(ctx, job.StudentID)
	if err != nil {
		return "", "", fmt.Errorf("load student: %w", err)
	}
	fees, err := s.fees.ListByStudent(ctx, job.StudentID)
	if err != nil {
		return "", "", fmt.Errorf("load student fees: %w", err)
	}

	data := buildStatement(student, fees, time.Now().UTC())
	var payload []byte
	switch job.Format {
	case models.StatementFormatCSV:
		payload, err = s.csv.Render(data)
	case models.StatementFormatPDF:
		payload, err = s.pdf.Render(data)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return "", "", fmt.Errorf("render statement: %w", err)
	}

	filename := fmt.Sprintf("statement_%s_%s.%s", job.StudentID, job.ID, job.Format)
	relPath, err = s.storage.Save(filename, payload)
	if err != nil {
		return "", "", fmt.Errorf("store statement: %w", err)
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", "", fmt.Errorf("sign statement url: %w", err)
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return relPath, fmt.Sprintf("%s/statements/download/%s", prefix, token), nil
}

func buildStatement(student *models.Student, fees []models.FeeWithCredits, now time.Time) export.Statement {
	rows := make([]map[string]string, 0, len(fees))
	for _, f := range fees {
		detail := ledger.Detail(f, now)
		rows = append(rows, map[string]string{
			"Fee":      f.Type,
			"Due Date": f.DueDate.Format("2006-01-02"),
			"Amount":   f.Amount.StringFixed(2),
			"Paid":     detail.Paid.StringFixed(2),
			"Discount": detail.Discounted.StringFixed(2),
			"Balance":  detail.Balance.StringFixed(2),
			"Status":   string(detail.Status),
		})
	}
	return export.Statement{
		Title:   fmt.Sprintf("Fee Statement - %s (%s)", student.FullName, student.NIS),
		Headers: []string{"Fee", "Due Date", "Amount", "Paid", "Discount", "Balance", "Status"},
		Rows:    rows,
		Summary: []map[string]string{{
			"Fee":     "Outstanding",
			"Balance": ledger.Outstanding(fees).StringFixed(2),
		}},
	}
}
