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

// FeeStructureRepository handles persistence of fee structures.
type FeeStructureRepository struct {
	db *sqlx.DB
}

// NewFeeStructureRepository constructs the repository.
func NewFeeStructureRepository(db *sqlx.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

const structureColumns = `id, type, amount, recurrence, is_default, created_at, updated_at`

// List returns structures matching the filter.
func (r *FeeStructureRepository) List(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructure, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Recurrence != "" {
		conditions = append(conditions, fmt.Sprintf("recurrence = $%d", len(args)+1))
		args = append(args, filter.Recurrence)
	}
	if filter.IsDefault != nil {
		conditions = append(conditions, fmt.Sprintf("is_default = $%d", len(args)+1))
		args = append(args, *filter.IsDefault)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("type ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM fee_structures%s ORDER BY type LIMIT %d OFFSET %d", structureColumns, clause, size, offset)
	var structures []models.FeeStructure
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee structures: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM fee_structures%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee structures: %w", err)
	}
	return structures, total, nil
}

// ListDefaults returns structures flagged for automatic subscription.
func (r *FeeStructureRepository) ListDefaults(ctx context.Context) ([]models.FeeStructure, error) {
	const query = `SELECT ` + structureColumns + ` FROM fee_structures WHERE is_default = true ORDER BY type`
	var structures []models.FeeStructure
	if err := r.db.SelectContext(ctx, &structures, query); err != nil {
		return nil, fmt.Errorf("list default structures: %w", err)
	}
	return structures, nil
}

// FindByID returns a structure by its ID.
func (r *FeeStructureRepository) FindByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	const query = `SELECT ` + structureColumns + ` FROM fee_structures WHERE id = $1`
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, id); err != nil {
		return nil, err
	}
	return &structure, nil
}

// ExistsByType reports whether a structure with the given label exists,
// optionally excluding one id (for updates).
func (r *FeeStructureRepository) ExistsByType(ctx context.Context, feeType, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM fee_structures WHERE type = $1 AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, feeType, excludeID); err != nil {
		return false, fmt.Errorf("check structure type: %w", err)
	}
	return exists, nil
}

// Create inserts a new structure.
func (r *FeeStructureRepository) Create(ctx context.Context, structure *models.FeeStructure) error {
	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	structure.CreatedAt = now
	structure.UpdatedAt = now
	const query = `INSERT INTO fee_structures (id, type, amount, recurrence, is_default, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, structure.ID, structure.Type, structure.Amount, structure.Recurrence, structure.IsDefault, structure.CreatedAt, structure.UpdatedAt); err != nil {
		return fmt.Errorf("insert fee structure: %w", err)
	}
	return nil
}

// Update persists label, amount, recurrence and default flag changes.
func (r *FeeStructureRepository) Update(ctx context.Context, structure *models.FeeStructure) error {
	structure.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fee_structures SET type = $1, amount = $2, recurrence = $3, is_default = $4, updated_at = $5 WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query, structure.Type, structure.Amount, structure.Recurrence, structure.IsDefault, structure.UpdatedAt, structure.ID); err != nil {
		return fmt.Errorf("update fee structure: %w", err)
	}
	return nil
}

// Delete removes a structure.
func (r *FeeStructureRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM fee_structures WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete fee structure: %w", err)
	}
	return nil
}

// CountSubscriptions returns how many subscriptions reference the structure.
func (r *FeeStructureRepository) CountSubscriptions(ctx context.Context, structureID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_fee_subscriptions WHERE structure_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, structureID); err != nil {
		return 0, fmt.Errorf("count structure subscriptions: %w", err)
	}
	return count, nil
}
