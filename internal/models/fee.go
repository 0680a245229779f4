package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus is the derived settlement state of an obligation.
type FeeStatus string

// Possible fee statuses.
const (
	FeeStatusSettled FeeStatus = "SETTLED"
	FeeStatusOverdue FeeStatus = "OVERDUE"
	FeeStatusPending FeeStatus = "PENDING"
)

// CreditType distinguishes collected cash from waived amounts. Both reduce
// an obligation's balance identically.
type CreditType string

// Possible credit types.
const (
	CreditTypePayment  CreditType = "PAYMENT"
	CreditTypeDiscount CreditType = "DISCOUNT"
)

// Fee is a concrete dated charge owed by a student. Amount is fixed at
// creation and never retroactively affected by structure edits.
type Fee struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	SubscriptionID *string         `db:"subscription_id" json:"subscription_id,omitempty"`
	Type           string          `db:"type" json:"type"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	DueDate        time.Time       `db:"due_date" json:"due_date"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Credit is a financial event against exactly one fee. Credits are created
// by the allocation engine and never mutated afterwards.
type Credit struct {
	ID        string          `db:"id" json:"id"`
	FeeID     string          `db:"fee_id" json:"fee_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Type      CreditType      `db:"type" json:"type"`
	Date      time.Time       `db:"date" json:"date"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// FeeWithCredits pairs a fee with its full credit history; the input shape
// for every balance derivation.
type FeeWithCredits struct {
	Fee
	Credits []Credit `json:"credits"`
}

// FeeDetail is the read-side view of a fee with derived figures attached.
type FeeDetail struct {
	Fee
	StudentName string          `json:"student_name,omitempty"`
	Paid        decimal.Decimal `json:"paid"`
	Discounted  decimal.Decimal `json:"discounted"`
	Balance     decimal.Decimal `json:"balance"`
	Status      FeeStatus       `json:"status"`
	Credits     []Credit        `json:"credits,omitempty"`
}

// CreditDetail enriches a credit with its fee context for listings.
type CreditDetail struct {
	Credit
	FeeType    string    `db:"fee_type" json:"fee_type"`
	StudentID  string    `db:"student_id" json:"student_id"`
	FeeDueDate time.Time `db:"fee_due_date" json:"fee_due_date"`
}

// FeeFilter captures filtering criteria for listing fees.
type FeeFilter struct {
	StudentID string
	ClassID   string
	Type      string
	DueFrom   *time.Time
	DueTo     *time.Time
	Page      int
	PageSize  int
}

// LedgerStats aggregates ledger-wide figures for reporting.
type LedgerStats struct {
	TotalFees        decimal.Decimal `db:"total_fees" json:"total_fees"`
	TotalCollected   decimal.Decimal `db:"total_collected" json:"total_collected"`
	TotalDiscounted  decimal.Decimal `db:"total_discounted" json:"total_discounted"`
	TotalOutstanding decimal.Decimal `db:"total_outstanding" json:"total_outstanding"`
	FeeCount         int             `db:"fee_count" json:"fee_count"`
	CreditCount      int             `db:"credit_count" json:"credit_count"`
}

// ClassCollectionSummary reports collection progress per class.
type ClassCollectionSummary struct {
	ClassID          string          `db:"class_id" json:"class_id"`
	StudentCount     int             `db:"student_count" json:"student_count"`
	TotalFees        decimal.Decimal `db:"total_fees" json:"total_fees"`
	TotalCredited    decimal.Decimal `db:"total_credited" json:"total_credited"`
	TotalOutstanding decimal.Decimal `db:"total_outstanding" json:"total_outstanding"`
}
