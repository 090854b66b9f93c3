package models

import "ledgerly/internal/predicate"

// CategorizationRule binds a predicate to a target category. Active rules are
// evaluated in ascending priority order and the first match wins.
type CategorizationRule struct {
	Base
	UserID     string              `gorm:"type:uuid;not null;uniqueIndex:idx_rules_user_name" json:"user_id"`
	CategoryID string              `gorm:"type:uuid;not null" json:"category_id"`
	Name       string              `gorm:"not null;uniqueIndex:idx_rules_user_name" json:"name"`
	Predicate  predicate.Predicate `gorm:"type:jsonb;not null" json:"predicate"`
	Priority   int                 `gorm:"not null;index" json:"priority"`
	Active     bool                `gorm:"not null;default:true" json:"active"`

	// Relationships
	Category Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// Matches reports whether the rule's predicate holds for the transaction.
// Always total; a malformed predicate simply never matches.
func (r *CategorizationRule) Matches(t *Transaction) bool {
	return r.Predicate.Matches(t.Subject())
}
