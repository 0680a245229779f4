package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// StatementRepository handles persistence of statement export jobs.
type StatementRepository struct {
	db *sqlx.DB
}

// NewStatementRepository constructs the repository.
func NewStatementRepository(db *sqlx.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

const statementColumns = `id, student_id, format, status, file_path, result_url, error_message, created_by, created_at, started_at, finished_at`

// Create inserts a queued statement job.
func (r *StatementRepository) Create(ctx context.Context, job *models.StatementJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	if job.Status == "" {
		job.Status = models.StatementStatusQueued
	}
	const query = `INSERT INTO statement_jobs (id, student_id, format, status, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.StudentID, job.Format, job.Status, job.CreatedBy, job.CreatedAt); err != nil {
		return fmt.Errorf("insert statement job: %w", err)
	}
	return nil
}

// GetByID returns a statement job by ID.
func (r *StatementRepository) GetByID(ctx context.Context, id string) (*models.StatementJob, error) {
	const query = `SELECT ` + statementColumns + ` FROM statement_jobs WHERE id = $1`
	var job models.StatementJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatementJobParams carries the mutable job fields.
type UpdateStatementJobParams struct {
	Status       *models.StatementStatus
	FilePath     *string
	ResultURL    *string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Update applies the provided fields to a job row.
func (r *StatementRepository) Update(ctx context.Context, id string, params UpdateStatementJobParams) error {
	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE statement_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update statement job: %w", err)
	}
	return nil
}

// ListFinishedBefore returns done or failed jobs older than the cutoff,
// feeding the cleanup routine.
func (r *StatementRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StatementJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM statement_jobs
        WHERE status IN ('DONE', 'FAILED') AND finished_at < $1
        ORDER BY finished_at LIMIT %d`, statementColumns, limit)
	var jobs []models.StatementJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff); err != nil {
		return nil, fmt.Errorf("list finished statement jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job row.
func (r *StatementRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM statement_jobs WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete statement job: %w", err)
	}
	return nil
}
