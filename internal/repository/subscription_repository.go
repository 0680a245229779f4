package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// SubscriptionRepository handles persistence of student fee subscriptions.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionDetailColumns = `sub.id, sub.student_id, sub.structure_id, sub.custom_amount, sub.is_active,
        sub.last_generated_for, sub.created_at, sub.updated_at,
        fs.type AS structure_type, fs.amount AS structure_amount, fs.recurrence,
        st.full_name AS student_name`

const subscriptionDetailBase = ` FROM student_fee_subscriptions sub
        JOIN fee_structures fs ON fs.id = sub.structure_id
        JOIN students st ON st.id = sub.student_id`

// List returns subscriptions with structure context.
func (r *SubscriptionRepository) List(ctx context.Context, filter models.SubscriptionFilter) ([]models.SubscriptionDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("sub.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.StructureID != "" {
		conditions = append(conditions, fmt.Sprintf("sub.structure_id = $%d", len(args)+1))
		args = append(args, filter.StructureID)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("sub.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
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

	query := fmt.Sprintf("SELECT %s%s%s ORDER BY st.full_name, fs.type LIMIT %d OFFSET %d",
		subscriptionDetailColumns, subscriptionDetailBase, clause, size, offset)
	var subscriptions []models.SubscriptionDetail
	if err := r.db.SelectContext(ctx, &subscriptions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*)%s%s", subscriptionDetailBase, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return subscriptions, total, nil
}

// ListActiveRecurring returns active subscriptions whose structure has a
// MONTHLY or YEARLY cadence, the scheduler's working set.
func (r *SubscriptionRepository) ListActiveRecurring(ctx context.Context) ([]models.SubscriptionDetail, error) {
	query := fmt.Sprintf(`SELECT %s%s
        WHERE sub.is_active = true AND fs.recurrence IN ('MONTHLY', 'YEARLY')
        ORDER BY sub.id`, subscriptionDetailColumns, subscriptionDetailBase)
	var subscriptions []models.SubscriptionDetail
	if err := r.db.SelectContext(ctx, &subscriptions, query); err != nil {
		return nil, fmt.Errorf("list active recurring subscriptions: %w", err)
	}
	return subscriptions, nil
}

// FindByID returns a subscription by its ID.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*models.StudentFeeSubscription, error) {
	const query = `SELECT id, student_id, structure_id, custom_amount, is_active, last_generated_for, created_at, updated_at
        FROM student_fee_subscriptions WHERE id = $1`
	var subscription models.StudentFeeSubscription
	if err := r.db.GetContext(ctx, &subscription, query, id); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// ExistsPair reports whether the student is already subscribed to the structure.
func (r *SubscriptionRepository) ExistsPair(ctx context.Context, studentID, structureID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_fee_subscriptions WHERE student_id = $1 AND structure_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, structureID); err != nil {
		return false, fmt.Errorf("check subscription pair: %w", err)
	}
	return exists, nil
}

// Create inserts a new subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, subscription *models.StudentFeeSubscription) error {
	if subscription.ID == "" {
		subscription.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subscription.CreatedAt = now
	subscription.UpdatedAt = now
	const query = `INSERT INTO student_fee_subscriptions (id, student_id, structure_id, custom_amount, is_active, last_generated_for, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, subscription.ID, subscription.StudentID, subscription.StructureID, subscription.CustomAmount, subscription.IsActive, subscription.LastGeneratedFor, subscription.CreatedAt, subscription.UpdatedAt); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// SetActive toggles the activation state.
func (r *SubscriptionRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE student_fee_subscriptions SET is_active = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, active, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("toggle subscription: %w", err)
	}
	return nil
}

// SetCustomAmount sets or clears the per-student amount override.
func (r *SubscriptionRepository) SetCustomAmount(ctx context.Context, id string, amount *decimal.Decimal) error {
	const query = `UPDATE student_fee_subscriptions SET custom_amount = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, amount, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update subscription amount: %w", err)
	}
	return nil
}

// Delete removes a subscription.
func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM student_fee_subscriptions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
