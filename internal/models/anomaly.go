package models

// AnomalyType classifies what the detector found suspicious.
type AnomalyType string

const (
	AnomalyUnusualAmount      AnomalyType = "unusual_amount"
	AnomalyDuplicate          AnomalyType = "duplicate"
	AnomalyMissingDescription AnomalyType = "missing_description"
	// AnomalySuspiciousPattern is reserved in the taxonomy; no detection rule
	// produces it yet.
	AnomalySuspiciousPattern AnomalyType = "suspicious_pattern"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Anomaly is a detector finding attached to exactly one transaction. Only the
// detector creates anomalies; users resolve them and never edit them
// otherwise.
type Anomaly struct {
	Base
	TransactionID string      `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Type          AnomalyType `gorm:"column:anomaly_type;not null" json:"type"`
	Severity      Severity    `gorm:"not null" json:"severity"`
	Description   string      `gorm:"not null" json:"description"`
	Resolved      bool        `gorm:"not null;default:false;index" json:"resolved"`

	// Relationships
	Transaction Transaction `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"transaction,omitempty"`
}
