package models

// User is the owner of all scoped records. Authentication is handled by the
// identity service; this row only anchors ownership and stores the password
// hash it hands us.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Relationships
	Categories   []Category           `gorm:"foreignKey:UserID" json:"categories,omitempty"`
	Transactions []Transaction        `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
	Rules        []CategorizationRule `gorm:"foreignKey:UserID" json:"rules,omitempty"`
	Imports      []CsvImport          `gorm:"foreignKey:UserID" json:"imports,omitempty"`
}
