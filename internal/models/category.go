package models

// Category groups transactions for one user. Deleting a category nullifies
// the category reference on its transactions and destroys its rules.
type Category struct {
	Base
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_categories_user_name" json:"user_id"`
	Name   string `gorm:"not null;uniqueIndex:idx_categories_user_name" json:"name"`
	Color  string `json:"color"`

	// Relationships
	Transactions []Transaction        `gorm:"foreignKey:CategoryID" json:"transactions,omitempty"`
	Rules        []CategorizationRule `gorm:"foreignKey:CategoryID" json:"rules,omitempty"`
}
