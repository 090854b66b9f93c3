package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ledgerly/internal/cache"
	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/logger"
	"ledgerly/internal/models"
	"ledgerly/internal/notify"
	"ledgerly/internal/pagination"
)

// transactionService handles transaction-related business logic, including
// the inline categorization and anomaly checks on the single-record path.
type transactionService struct {
	db        *gorm.DB
	cache     cache.Cache
	sink      notify.Sink
	rules     CategorizationServicer
	anomalies AnomalyServicer
	batchSize int
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, c cache.Cache, sink notify.Sink, rules CategorizationServicer, anomalies AnomalyServicer, batchSize int) TransactionServicer {
	return &transactionService{db: db, cache: c, sink: sink, rules: rules, anomalies: anomalies, batchSize: batchSize}
}

// CreateTransaction persists one transaction, then runs rule categorization
// and anomaly detection inline.
func (s *transactionService) CreateTransaction(userID string, categoryID *string, amount decimal.Decimal, description string, date time.Time) (*models.Transaction, error) {
	if amount.IsZero() {
		return nil, apperrors.ErrZeroAmount
	}
	if date.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction date is required")
	}

	if categoryID != nil {
		var category models.Category
		if err := s.db.Where("id = ? AND user_id = ?", *categoryID, userID).First(&category).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrCategoryNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	txn := &models.Transaction{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: description,
		Date:        date,
	}
	if err := s.db.Create(txn).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if _, err := s.rules.ApplySingle(txn); err != nil {
		return nil, err
	}
	if _, err := s.anomalies.DetectSingle(txn); err != nil {
		return nil, err
	}

	s.invalidate(context.Background(), userID, cache.NamespaceDashboard, cache.NamespacePatterns, cache.NamespaceUncategorized, cache.NamespaceCategoryStats)
	return txn, nil
}

// GetUserTransactions retrieves a paginated, filtered list of the owner's
// transactions, newest first.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	if filter.FromDate != nil {
		base = base.Where("date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		base = base.Where("date <= ?", *filter.ToDate)
	}
	if filter.CategoryID != nil {
		base = base.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.Uncategorized {
		base = base.Where("category_id IS NULL")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Category").
		Order("date DESC, created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetTransactionByID retrieves one transaction for its owner.
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.Preload("Category").Preload("Anomalies").
		Where("id = ? AND user_id = ?", transactionID, userID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &txn, nil
}

// BulkDelete removes the given transactions and their anomalies. The whole
// request is rejected if any id is missing or foreign.
func (s *transactionService) BulkDelete(ctx context.Context, userID string, transactionIDs []string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND id IN ?", userID, transactionIDs).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count != int64(len(transactionIDs)) {
		return 0, apperrors.ErrOwnershipMismatch
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range chunkIDs(transactionIDs, s.batchSize) {
			// Anomalies go first; the cascade is not relied on.
			if err := tx.Where("transaction_id IN ?", chunk).Delete(&models.Anomaly{}).Error; err != nil {
				return err
			}
			res := tx.Where("user_id = ? AND id IN ?", userID, chunk).Delete(&models.Transaction{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidate(ctx, userID)
	s.sink.Publish(notify.TransactionsTopic(userID), notify.Event{
		"type":  "bulk_deleted",
		"count": deleted,
	})
	return deleted, nil
}

// DashboardSummary returns the cached per-owner overview.
func (s *transactionService) DashboardSummary(ctx context.Context, userID string) (*DashboardSummary, error) {
	key := cache.Key(userID, cache.NamespaceDashboard)
	summary, err := cache.Fetch(ctx, s.cache, key, cache.TTLDashboard, func() (DashboardSummary, error) {
		var summary DashboardSummary
		base := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)

		if err := base.Session(&gorm.Session{}).Count(&summary.TransactionCount).Error; err != nil {
			return summary, err
		}

		var total struct{ Total decimal.Decimal }
		if err := base.Session(&gorm.Session{}).
			Select("COALESCE(SUM(amount), 0) as total").
			Scan(&total).Error; err != nil {
			return summary, err
		}
		summary.TotalAmount = total.Total

		if err := base.Session(&gorm.Session{}).
			Where("category_id IS NULL").
			Count(&summary.UncategorizedCount).Error; err != nil {
			return summary, err
		}

		owned := s.db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", userID)
		if err := s.db.WithContext(ctx).Model(&models.Anomaly{}).
			Where("resolved = ? AND transaction_id IN (?)", false, owned).
			Count(&summary.UnresolvedAnomaly).Error; err != nil {
			return summary, err
		}

		if err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("date DESC, created_at DESC").
			Limit(5).
			Find(&summary.RecentTransactions).Error; err != nil {
			return summary, err
		}
		return summary, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &summary, nil
}

// CategoryStats returns per-category aggregates, cached for the stats TTL.
func (s *transactionService) CategoryStats(ctx context.Context, userID string) ([]CategoryStat, error) {
	key := cache.Key(userID, cache.NamespaceCategoryStats)
	stats, err := cache.Fetch(ctx, s.cache, key, cache.TTLCategoryStats, func() ([]CategoryStat, error) {
		var stats []CategoryStat
		err := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Select("categories.id as category_id, categories.name as category_name, COUNT(transactions.id) as count, COALESCE(SUM(transactions.amount), 0) as total, COALESCE(AVG(transactions.amount), 0) as average").
			Joins("JOIN categories ON categories.id = transactions.category_id").
			Where("transactions.user_id = ?", userID).
			Group("categories.id, categories.name").
			Order("total DESC").
			Scan(&stats).Error
		return stats, err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return stats, nil
}

func (s *transactionService) invalidate(ctx context.Context, userID string, namespaces ...cache.Namespace) {
	if err := cache.InvalidateOwner(ctx, s.cache, userID, namespaces...); err != nil {
		logger.Get().Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}
