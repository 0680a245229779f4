package models

import "time"

// StatementFormat selects the rendered statement file type.
type StatementFormat string

// Supported statement formats.
const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

// StatementStatus tracks the lifecycle of an export job.
type StatementStatus string

// Possible statement job statuses.
const (
	StatementStatusQueued     StatementStatus = "QUEUED"
	StatementStatusProcessing StatementStatus = "PROCESSING"
	StatementStatusDone       StatementStatus = "DONE"
	StatementStatusFailed     StatementStatus = "FAILED"
)

// StatementJob is a queued per-student ledger statement export.
type StatementJob struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	Format       StatementFormat `db:"format" json:"format"`
	Status       StatementStatus `db:"status" json:"status"`
	FilePath     *string         `db:"file_path" json:"-"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}
