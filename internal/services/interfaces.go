package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgerly/internal/models"
	"ledgerly/internal/pagination"
	"ledgerly/internal/predicate"
)

// RuleInput is the payload for creating a categorization rule.
type RuleInput struct {
	Name       string              `json:"name" binding:"required"`
	CategoryID string              `json:"category_id" binding:"required,uuid"`
	Priority   int                 `json:"priority" binding:"required,min=1"`
	Predicate  predicate.Predicate `json:"predicate"`
}

// RulePriority is one entry of a reorder request.
type RulePriority struct {
	RuleID   string `json:"rule_id" binding:"required,uuid"`
	Priority int    `json:"priority" binding:"required,min=1"`
}

// CategorizationServicer defines the contract for rule-based categorization.
type CategorizationServicer interface {
	// ApplySingle assigns the first matching active rule's category to an
	// uncategorized transaction. Reports whether an assignment happened.
	ApplySingle(txn *models.Transaction) (bool, error)
	// BulkApply runs the rule set over the owner's uncategorized
	// transactions, optionally restricted to the given ids, and returns the
	// number categorized.
	BulkApply(ctx context.Context, userID string, transactionIDs []string) (int64, error)
	// BulkCategorize assigns one category to the given transactions.
	BulkCategorize(ctx context.Context, userID, categoryID string, transactionIDs []string) (int64, error)
	// CreateRuleAndApply validates and persists a rule, then retroactively
	// applies the owner's rule set. Returns the rule and the number of
	// transactions categorized by the retroactive pass.
	CreateRuleAndApply(ctx context.Context, userID string, input RuleInput) (*models.CategorizationRule, int64, error)
	ListRules(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategorizationRule], error)
	// SetRulesActive toggles the given rules; reactivation triggers a
	// retroactive BulkApply.
	SetRulesActive(ctx context.Context, userID string, ruleIDs []string, active bool) (int64, error)
	DeleteRules(ctx context.Context, userID string, ruleIDs []string) error
	ReorderRules(ctx context.Context, userID string, order []RulePriority) error
}

// SpendingPatterns are the per-owner amount statistics the detector scores
// against.
type SpendingPatterns struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// AnomalySummary counts an owner's unresolved anomalies.
type AnomalySummary struct {
	Total      int64                        `json:"total"`
	BySeverity map[models.Severity]int64    `json:"by_severity"`
	ByType     map[models.AnomalyType]int64 `json:"by_type"`
}

// AnomalyServicer defines the contract for anomaly detection.
type AnomalyServicer interface {
	SpendingPatterns(ctx context.Context, userID string) (*SpendingPatterns, error)
	// DetectSingle checks one transaction and returns the number of
	// anomalies created. A transaction with an unresolved anomaly is skipped.
	DetectSingle(txn *models.Transaction) (int, error)
	// BulkDetect scans the owner's transactions, optionally restricted to
	// the given ids, and returns the number of anomalies flagged.
	BulkDetect(ctx context.Context, userID string, transactionIDs []string) (int64, error)
	ListAnomalies(userID string, resolved *bool, page pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error)
	ResolveAnomalies(ctx context.Context, userID string, anomalyIDs []string) (int64, error)
	AnomalySummary(ctx context.Context, userID string) (*AnomalySummary, error)
}

// TransactionInput is one row of a programmatic bulk insert or a parsed CSV
// row.
type TransactionInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	CategoryID  *string         `json:"category_id,omitempty"`
}

// UploadTicket is a pre-signed upload slot for a client-direct CSV upload.
type UploadTicket struct {
	URL        string    `json:"url"`
	StorageKey string    `json:"storage_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ImportServicer defines the contract for the CSV import pipeline.
type ImportServicer interface {
	// PresignUpload issues a signed PUT URL and the storage key the client
	// must upload to before calling CreateImport.
	PresignUpload(userID, filename, contentType string) (*UploadTicket, error)
	// CreateImport records a pending import for an uploaded file and
	// enqueues its processing.
	CreateImport(userID, filename, storageKey string, fileSize int64) (*models.CsvImport, error)
	// Process runs the pipeline for one import. Calling it on an import
	// that is already processing or completed is a no-op.
	Process(ctx context.Context, importID string) error
	// BulkInsertTransactions inserts rows in batches and runs the same
	// follow-up categorization and detection passes as a CSV import.
	// Returns the created transaction ids.
	BulkInsertTransactions(ctx context.Context, userID string, rows []TransactionInput) ([]string, error)
	GetImport(userID, importID string) (*models.CsvImport, error)
	ListImports(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.CsvImport], error)
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate      *time.Time
	ToDate        *time.Time
	CategoryID    *string
	Uncategorized bool
}

// DashboardSummary is the cached per-owner overview.
type DashboardSummary struct {
	TransactionCount   int64                `json:"transaction_count"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
	UncategorizedCount int64                `json:"uncategorized_count"`
	UnresolvedAnomaly  int64                `json:"unresolved_anomaly_count"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}

// CategoryStat aggregates one category's transactions.
type CategoryStat struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Count        int64           `json:"count"`
	Total        decimal.Decimal `json:"total"`
	Average      decimal.Decimal `json:"average"`
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	// CreateTransaction persists one transaction, then runs categorization
	// and anomaly detection inline.
	CreateTransaction(userID string, categoryID *string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	// BulkDelete removes the given transactions and their anomalies.
	BulkDelete(ctx context.Context, userID string, transactionIDs []string) (int64, error)
	DashboardSummary(ctx context.Context, userID string) (*DashboardSummary, error)
	CategoryStats(ctx context.Context, userID string) ([]CategoryStat, error)
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID, name, color string) (*models.Category, error)
	GetCategories(ctx context.Context, userID string) ([]models.Category, error)
	// DeleteCategory nullifies the category on its transactions and removes
	// its rules along with the category itself.
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}
