package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a student's stored balance. One wallet per user, provisioned by
// seed data or an admin top-up, never created by the purchase path. The balance
// is only ever decremented by purchase settlement.
type Wallet struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}
