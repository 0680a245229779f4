package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recurrence determines how often a fee structure generates obligations.
type Recurrence string

// Supported recurrence cadences.
const (
	RecurrenceOnce    Recurrence = "ONCE"
	RecurrenceMonthly Recurrence = "MONTHLY"
	RecurrenceYearly  Recurrence = "YEARLY"
)

// Valid reports whether the recurrence is one of the supported cadences.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

// FeeStructure is a reusable fee template. Type doubles as the unique
// human-readable label copied onto obligations created from it.
type FeeStructure struct {
	ID         string          `db:"id" json:"id"`
	Type       string          `db:"type" json:"type"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Recurrence Recurrence      `db:"recurrence" json:"recurrence"`
	IsDefault  bool            `db:"is_default" json:"is_default"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// FeeStructureFilter captures filtering criteria for listing structures.
type FeeStructureFilter struct {
	Recurrence Recurrence
	IsDefault  *bool
	Search     string
	Page       int
	PageSize   int
}
