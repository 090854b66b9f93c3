package models

import (
	"time"

	"ledgerly/internal/predicate"

	"github.com/shopspring/decimal"
)

// Transaction represents a single ledger entry owned by one user.
// Amount is a signed decimal and must be nonzero; the category reference is
// weak and is nullified when the category is deleted.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID  *string         `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `gorm:"type:date;not null;index" json:"date"`

	// Relationships
	Category  *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Anomalies []Anomaly `gorm:"foreignKey:TransactionID" json:"anomalies,omitempty"`
}

// Uncategorized reports whether the transaction still lacks a category.
func (t *Transaction) Uncategorized() bool {
	return t.CategoryID == nil
}

// Subject returns the predicate-engine view of this transaction.
func (t *Transaction) Subject() predicate.Subject {
	date := t.Date
	return predicate.Subject{
		Description: &t.Description,
		Amount:      &t.Amount,
		Date:        &date,
	}
}
