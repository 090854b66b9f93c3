package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImportStatus is the import state machine: pending → processing →
// {completed | failed}. Terminal states never transition back.
type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// ProcessingStats summarizes a completed import run.
type ProcessingStats struct {
	TotalRows      int     `json:"total_rows"`
	ProcessedRows  int     `json:"processed_rows"`
	ErrorRows      int     `json:"error_rows"`
	SuccessRate    float64 `json:"success_rate"`
	ProcessingTime float64 `json:"processing_time"`
	RowsPerSecond  float64 `json:"rows_per_second"`
}

// ImportMetadata is the free-form bag persisted on the import row. Errors
// holds a rolling window of the last 100 row-level error messages.
type ImportMetadata struct {
	ContentType     string           `json:"content_type,omitempty"`
	UploadedAt      string           `json:"uploaded_at,omitempty"`
	LastProcessedAt string           `json:"last_processed_at,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	Stats           *ProcessingStats `json:"processing_stats,omitempty"`
}

// Value implements driver.Valuer so the metadata persists as a JSON column.
func (m ImportMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *ImportMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ImportMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into ImportMetadata", value)
	}
}

// CsvImport tracks one uploaded CSV file through the import pipeline.
type CsvImport struct {
	Base
	UserID        string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Filename      string         `gorm:"not null" json:"filename"`
	Status        ImportStatus   `gorm:"not null;default:pending;index" json:"status"`
	TotalRows     int            `gorm:"not null;default:0" json:"total_rows"`
	ProcessedRows int            `gorm:"not null;default:0" json:"processed_rows"`
	ErrorRows     int            `gorm:"not null;default:0" json:"error_rows"`
	FileSize      int64          `json:"file_size"`
	StorageKey    string         `gorm:"not null" json:"storage_key"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Metadata      ImportMetadata `gorm:"type:jsonb" json:"metadata"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// ProgressPercentage returns the processed share of total rows, rounded to
// two decimals.
func (i *CsvImport) ProgressPercentage() float64 {
	if i.TotalRows == 0 {
		return 0
	}
	pct := float64(i.ProcessedRows) / float64(i.TotalRows) * 100
	return round2(pct)
}

// ProcessingTimeSeconds returns the elapsed run time, or 0 while running.
func (i *CsvImport) ProcessingTimeSeconds() float64 {
	if i.StartedAt == nil || i.CompletedAt == nil {
		return 0
	}
	return round2(i.CompletedAt.Sub(*i.StartedAt).Seconds())
}

// RowsPerSecond returns processing throughput for a finished run.
func (i *CsvImport) RowsPerSecond() float64 {
	elapsed := i.ProcessingTimeSeconds()
	if elapsed <= 0 {
		return 0
	}
	return round2(float64(i.ProcessedRows) / elapsed)
}

// Completed reports whether the import reached the completed terminal state.
func (i *CsvImport) Completed() bool { return i.Status == ImportCompleted }

// Failed reports whether the import reached the failed terminal state.
func (i *CsvImport) Failed() bool { return i.Status == ImportFailed }

// Processing reports whether the import is currently being processed.
func (i *CsvImport) Processing() bool { return i.Status == ImportProcessing }

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
