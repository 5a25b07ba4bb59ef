package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PurchaseStatusSuccess = "SUCCESS"

// PurchaseTransaction is an append-only ledger row for a completed payment.
// Amount snapshots the course price at purchase time and never changes with
// later price edits.
type PurchaseTransaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	CourseID  string          `json:"courseId" db:"course_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}
