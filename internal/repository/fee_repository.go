package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
)

// ErrAlreadyGenerated signals that another pass generated the period first.
var ErrAlreadyGenerated = errors.New("subscription period already generated")

// FeeRepository handles persistence of fees and their credits.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const feeColumns = `id, student_id, subscription_id, type, amount, due_date, created_at`

// FindByID returns a fee by its ID.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.Fee, error) {
	const query = `SELECT ` + feeColumns + ` FROM fees WHERE id = $1`
	var fee models.Fee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// FindWithCredits returns a fee together with its credit history.
func (r *FeeRepository) FindWithCredits(ctx context.Context, id string) (*models.FeeWithCredits, error) {
	fee, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var credits []models.Credit
	const query = `SELECT id, fee_id, amount, type, date, created_at FROM credits WHERE fee_id = $1 ORDER BY date, id`
	if err := r.db.SelectContext(ctx, &credits, query, id); err != nil {
		return nil, fmt.Errorf("load credits: %w", err)
	}
	return &models.FeeWithCredits{Fee: *fee, Credits: credits}, nil
}

// ListByStudent returns every fee of a student with credits attached,
// ordered by due date then id.
func (r *FeeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.FeeWithCredits, error) {
	return listStudentFees(ctx, r.db, studentID)
}

// List returns fees matching the filter, credits attached.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeWithCredits, int, error) {
	conditions := []string{}
	args := []interface{}{}
	base := `FROM fees f`
	if filter.ClassID != "" {
		base += ` JOIN students s ON s.id = f.student_id`
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("f.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.DueFrom != nil {
		conditions = append(conditions, fmt.Sprintf("f.due_date >= $%d", len(args)+1))
		args = append(args, *filter.DueFrom)
	}
	if filter.DueTo != nil {
		conditions = append(conditions, fmt.Sprintf("f.due_date <= $%d", len(args)+1))
		args = append(args, *filter.DueTo)
	}
	clause := ""
	for i, c := range conditions {
		if i == 0 {
			clause = " WHERE " + c
		} else {
			clause += " AND " + c
		}
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

	query := fmt.Sprintf(`SELECT f.id, f.student_id, f.subscription_id, f.type, f.amount, f.due_date, f.created_at
        %s ORDER BY f.due_date, f.id LIMIT %d OFFSET %d`, base+clause, size, offset)
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fees: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fees: %w", err)
	}

	withCredits, err := attachCredits(ctx, r.db, fees)
	if err != nil {
		return nil, 0, err
	}
	return withCredits, total, nil
}

// Create inserts a manually created fee.
func (r *FeeRepository) Create(ctx context.Context, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	fee.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO fees (id, student_id, subscription_id, type, amount, due_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, fee.ID, fee.StudentID, fee.SubscriptionID, fee.Type, fee.Amount, fee.DueDate, fee.CreatedAt); err != nil {
		return fmt.Errorf("insert fee: %w", err)
	}
	return nil
}

// BulkCreate inserts fees for multiple students in one transaction.
func (r *FeeRepository) BulkCreate(ctx context.Context, fees []models.Fee) error {
	if len(fees) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create: %w", err)
	}
	const query = `INSERT INTO fees (id, student_id, subscription_id, type, amount, due_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	now := time.Now().UTC()
	for i := range fees {
		if fees[i].ID == "" {
			fees[i].ID = uuid.NewString()
		}
		fees[i].CreatedAt = now
		if _, err := tx.ExecContext(ctx, query, fees[i].ID, fees[i].StudentID, fees[i].SubscriptionID, fees[i].Type, fees[i].Amount, fees[i].DueDate, fees[i].CreatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert fee for student %s: %w", fees[i].StudentID, err)
		}
	}
	return tx.Commit()
}

// Delete removes a fee unless credits exist against it. It returns the
// number of deleted rows so callers can distinguish a credited fee from a
// missing one.
func (r *FeeRepository) Delete(ctx context.Context, id string) (int64, error) {
	const query = `DELETE FROM fees WHERE id = $1
        AND NOT EXISTS (SELECT 1 FROM credits WHERE fee_id = $1)`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete fee: %w", err)
	}
	return res.RowsAffected()
}

// Allocate distributes the requested amount and discount over the student's
// ledger inside one transaction. A per-student advisory lock serializes
// concurrent allocations so two payments cannot jointly overcommit the same
// balance. Either every planned credit is written or none are.
func (r *FeeRepository) Allocate(ctx context.Context, studentID, targetFeeID string, amount, discount decimal.Decimal, date time.Time) ([]models.Credit, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocation: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, studentLockKey(studentID)); err != nil {
		return nil, fmt.Errorf("acquire student lock: %w", err)
	}

	var drafts []ledger.Draft
	if targetFeeID != "" {
		var fee models.Fee
		const feeQuery = `SELECT ` + feeColumns + ` FROM fees WHERE id = $1 AND student_id = $2`
		if err := tx.GetContext(ctx, &fee, feeQuery, targetFeeID, studentID); err != nil {
			return nil, err
		}
		var credits []models.Credit
		const creditQuery = `SELECT id, fee_id, amount, type, date, created_at FROM credits WHERE fee_id = $1`
		if err := tx.SelectContext(ctx, &credits, creditQuery, targetFeeID); err != nil {
			return nil, fmt.Errorf("load credits: %w", err)
		}
		drafts, err = ledger.AllocateTargeted(models.FeeWithCredits{Fee: fee, Credits: credits}, amount, discount)
	} else {
		var fees []models.FeeWithCredits
		fees, err = listStudentFees(ctx, tx, studentID)
		if err != nil {
			return nil, err
		}
		drafts, err = ledger.Allocate(fees, amount, discount)
	}
	if err != nil {
		return nil, err
	}

	created := make([]models.Credit, 0, len(drafts))
	const insertQuery = `INSERT INTO credits (id, fee_id, amount, type, date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	now := time.Now().UTC()
	for _, draft := range drafts {
		c := models.Credit{
			ID:        uuid.NewString(),
			FeeID:     draft.FeeID,
			Amount:    draft.Amount,
			Type:      draft.Type,
			Date:      date,
			CreatedAt: now,
		}
		if _, err := tx.ExecContext(ctx, insertQuery, c.ID, c.FeeID, c.Amount, c.Type, c.Date, c.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert credit: %w", err)
		}
		created = append(created, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return created, nil
}

// CreateGenerated writes a scheduler-generated fee and advances the
// subscription watermark in one transaction. The guarded UPDATE keeps
// last_generated_for monotonic; losing the race surfaces as
// ErrAlreadyGenerated and nothing is written.
func (r *FeeRepository) CreateGenerated(ctx context.Context, fee *models.Fee, subscriptionID string, periodStart time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin generation: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const updateQuery = `UPDATE student_fee_subscriptions
        SET last_generated_for = $1, updated_at = $2
        WHERE id = $3 AND (last_generated_for IS NULL OR last_generated_for < $1)`
	res, err := tx.ExecContext(ctx, updateQuery, periodStart, time.Now().UTC(), subscriptionID)
	if err != nil {
		return fmt.Errorf("advance subscription watermark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance subscription watermark: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyGenerated
	}

	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	fee.CreatedAt = time.Now().UTC()
	const insertQuery = `INSERT INTO fees (id, student_id, subscription_id, type, amount, due_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insertQuery, fee.ID, fee.StudentID, fee.SubscriptionID, fee.Type, fee.Amount, fee.DueDate, fee.CreatedAt); err != nil {
		return fmt.Errorf("insert generated fee: %w", err)
	}

	return tx.Commit()
}

// ListCreditsByStudent returns every credit against the student's fees.
func (r *FeeRepository) ListCreditsByStudent(ctx context.Context, studentID string) ([]models.CreditDetail, error) {
	const query = `SELECT c.id, c.fee_id, c.amount, c.type, c.date, c.created_at,
        f.type AS fee_type, f.student_id, f.due_date AS fee_due_date
        FROM credits c JOIN fees f ON f.id = c.fee_id
        WHERE f.student_id = $1 ORDER BY c.date DESC, c.id`
	var credits []models.CreditDetail
	if err := r.db.SelectContext(ctx, &credits, query, studentID); err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return credits, nil
}

// FindCreditByID returns a single credit.
func (r *FeeRepository) FindCreditByID(ctx context.Context, id string) (*models.Credit, error) {
	const query = `SELECT id, fee_id, amount, type, date, created_at FROM credits WHERE id = $1`
	var credit models.Credit
	if err := r.db.GetContext(ctx, &credit, query, id); err != nil {
		return nil, err
	}
	return &credit, nil
}

// DeleteCredit removes a credit; balances are re-derived on the next read.
func (r *FeeRepository) DeleteCredit(ctx context.Context, id string) error {
	const query = `DELETE FROM credits WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credit: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AggregateStats folds ledger-wide totals for reporting.
func (r *FeeRepository) AggregateStats(ctx context.Context) (*models.LedgerStats, error) {
	const query = `SELECT
        COALESCE(SUM(f.amount), 0) AS total_fees,
        COALESCE((SELECT SUM(amount) FROM credits WHERE type = 'PAYMENT'), 0) AS total_collected,
        COALESCE((SELECT SUM(amount) FROM credits WHERE type = 'DISCOUNT'), 0) AS total_discounted,
        COUNT(f.id) AS fee_count,
        COALESCE((SELECT COUNT(*) FROM credits), 0) AS credit_count
        FROM fees f`
	var stats models.LedgerStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("aggregate ledger stats: %w", err)
	}
	stats.TotalOutstanding = stats.TotalFees.Sub(stats.TotalCollected).Sub(stats.TotalDiscounted)
	return &stats, nil
}

// ClassSummaries reports collection progress grouped by class.
func (r *FeeRepository) ClassSummaries(ctx context.Context) ([]models.ClassCollectionSummary, error) {
	const query = `SELECT s.class_id,
        COUNT(DISTINCT s.id) AS student_count,
        COALESCE(SUM(f.amount), 0) AS total_fees,
        COALESCE(SUM(c.credited), 0) AS total_credited,
        COALESCE(SUM(f.amount), 0) - COALESCE(SUM(c.credited), 0) AS total_outstanding
        FROM students s
        LEFT JOIN fees f ON f.student_id = s.id
        LEFT JOIN (SELECT fee_id, SUM(amount) AS credited FROM credits GROUP BY fee_id) c ON c.fee_id = f.id
        GROUP BY s.class_id ORDER BY s.class_id`
	var summaries []models.ClassCollectionSummary
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("class summaries: %w", err)
	}
	return summaries, nil
}

func listStudentFees(ctx context.Context, q sqlx.QueryerContext, studentID string) ([]models.FeeWithCredits, error) {
	const query = `SELECT ` + feeColumns + ` FROM fees WHERE student_id = $1 ORDER BY due_date, id`
	var fees []models.Fee
	if err := sqlx.SelectContext(ctx, q, &fees, query, studentID); err != nil {
		return nil, fmt.Errorf("list student fees: %w", err)
	}
	return attachCredits(ctx, q, fees)
}

func attachCredits(ctx context.Context, q sqlx.QueryerContext, fees []models.Fee) ([]models.FeeWithCredits, error) {
	result := make([]models.FeeWithCredits, len(fees))
	if len(fees) == 0 {
		return result, nil
	}
	ids := make([]string, len(fees))
	index := make(map[string]int, len(fees))
	for i, f := range fees {
		result[i] = models.FeeWithCredits{Fee: f}
		ids[i] = f.ID
		index[f.ID] = i
	}

	query, args, err := sqlx.In(`SELECT id, fee_id, amount, type, date, created_at FROM credits WHERE fee_id IN (?) ORDER BY date, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build credit query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	var credits []models.Credit
	if err := sqlx.SelectContext(ctx, q, &credits, query, args...); err != nil {
		return nil, fmt.Errorf("load credits: %w", err)
	}
	for _, c := range credits {
		if i, ok := index[c.FeeID]; ok {
			result[i].Credits = append(result[i].Credits, c)
		}
	}
	return result, nil
}

// studentLockKey maps a student id onto the advisory lock keyspace.
func studentLockKey(studentID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(studentID))
	return int64(h.Sum64())
}
