package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentFeeSubscription binds a student to a fee structure. A student can
// subscribe to a given structure at most once.
type StudentFeeSubscription struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	StructureID      string           `db:"structure_id" json:"structure_id"`
	CustomAmount     *decimal.Decimal `db:"custom_amount" json:"custom_amount,omitempty"`
	IsActive         bool             `db:"is_active" json:"is_active"`
	LastGeneratedFor *time.Time       `db:"last_generated_for" json:"last_generated_for,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// SubscriptionDetail enriches a subscription with its structure fields, as
// needed by the generation scheduler and list endpoints.
type SubscriptionDetail struct {
	StudentFeeSubscription
	StructureType   string          `db:"structure_type" json:"structure_type"`
	StructureAmount decimal.Decimal `db:"structure_amount" json:"structure_amount"`
	Recurrence      Recurrence      `db:"recurrence" json:"recurrence"`
	StudentName     string          `db:"student_name" json:"student_name"`
}

// ChargeAmount resolves the amount an obligation generated from this
// subscription carries: the per-student override when present, otherwise the
// structure's amount.
func (d SubscriptionDetail) ChargeAmount() decimal.Decimal {
	if d.CustomAmount != nil {
		return *d.CustomAmount
	}
	return d.StructureAmount
}

// SubscriptionFilter captures filtering criteria for listing subscriptions.
type SubscriptionFilter struct {
	StudentID   string
	StructureID string
	IsActive    *bool
	Page        int
	PageSize    int
}
