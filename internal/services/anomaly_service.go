package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
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

const (
	// minimum sample size before z-scores mean anything
	minPatternSample = 10

	zFlag     = 2.5
	zHigh     = 3.0
	zCritical = 4.0
)

// anomalyService flags suspicious transactions: statistical amount outliers,
// likely duplicates, and missing descriptions. Only this service creates
// anomaly rows.
type anomalyService struct {
	db        *gorm.DB
	cache     cache.Cache
	sink      notify.Sink
	batchSize int
}

// NewAnomalyService creates a new AnomalyServicer.
func NewAnomalyService(db *gorm.DB, c cache.Cache, sink notify.Sink, batchSize int) AnomalyServicer {
	return &anomalyService{db: db, cache: c, sink: sink, batchSize: batchSize}
}

// SpendingPatterns returns the owner's amount statistics, cached for the
// patterns TTL.
func (s *anomalyService) SpendingPatterns(ctx context.Context, userID string) (*SpendingPatterns, error) {
	key := cache.Key(userID, cache.NamespacePatterns)
	patterns, err := cache.Fetch(ctx, s.cache, key, cache.TTLPatterns, func() (SpendingPatterns, error) {
		amounts, err := s.amounts(ctx, userID, "")
		if err != nil {
			return SpendingPatterns{}, err
		}
		return computePatterns(amounts), nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &patterns, nil
}

// DetectSingle checks one transaction and persists any findings. A
// transaction that already carries an unresolved anomaly is skipped so
// repeated detection never duplicates findings.
func (s *anomalyService) DetectSingle(txn *models.Transaction) (int, error) {
	var unresolved int64
	if err := s.db.Model(&models.Anomaly{}).
		Where("transaction_id = ? AND resolved = ?", txn.ID, false).
		Count(&unresolved).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if unresolved > 0 {
		return 0, nil
	}

	var found []models.Anomaly

	// Amount outlier, scored against the owner's other transactions.
	amounts, err := s.amounts(context.Background(), txn.UserID, txn.ID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(amounts) >= minPatternSample {
		patterns := computePatterns(amounts)
		if a := unusualAmount(txn, patterns); a != nil {
			found = append(found, *a)
		}
	}

	// Same owner, amount, date, and description elsewhere.
	var dupes int64
	if err := s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND id <> ? AND amount = ? AND date = ? AND description = ?",
			txn.UserID, txn.ID, txn.Amount, txn.Date, txn.Description).
		Count(&dupes).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if dupes > 0 {
		found = append(found, models.Anomaly{
			TransactionID: txn.ID,
			Type:          models.AnomalyDuplicate,
			Severity:      models.SeverityHigh,
			Description:   "Possible duplicate: same amount, date, and description as another transaction",
		})
	}

	if a := missingDescription(txn); a != nil {
		found = append(found, *a)
	}

	if len(found) == 0 {
		return 0, nil
	}
	if err := s.db.Create(&found).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.invalidate(context.Background(), txn.UserID)
	return len(found), nil
}

// BulkDetect scans the owner's transactions for anomalies. The duplicate
// check runs as one grouped query; the per-row checks stream in batches.
// Returns the number of transactions flagged.
func (s *anomalyService) BulkDetect(ctx context.Context, userID string, transactionIDs []string) (int64, error) {
	patterns, err := s.SpendingPatterns(ctx, userID)
	if err != nil {
		return 0, err
	}
	if patterns.Count < minPatternSample {
		return 0, nil
	}

	guarded, err := s.unresolvedTransactionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	scoped := func(db *gorm.DB) *gorm.DB {
		q := db.Where("user_id = ?", userID)
		if len(transactionIDs) > 0 {
			q = q.Where("id IN ?", transactionIDs)
		}
		return q
	}

	var pending []models.Anomaly
	var flagged int64

	// Duplicate pass: one grouped query over the scoped set.
	type dupeGroup struct {
		Description string
		Date        time.Time
		Amount      decimal.Decimal
	}
	var groups []dupeGroup
	if err := scoped(s.db.WithContext(ctx).Model(&models.Transaction{})).
		Select("description, date, amount").
		Group("description, date, amount").
		Having("COUNT(*) > 1").
		Scan(&groups).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for _, g := range groups {
		var ids []string
		if err := scoped(s.db.WithContext(ctx).Model(&models.Transaction{})).
			Where("description = ? AND date = ? AND amount = ?", g.Description, g.Date, g.Amount).
			Pluck("id", &ids).Error; err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for _, id := range ids {
			if guarded[id] {
				continue
			}
			guarded[id] = true
			flagged++
			pending = append(pending, models.Anomaly{
				TransactionID: id,
				Type:          models.AnomalyDuplicate,
				Severity:      models.SeverityHigh,
				Description:   "Possible duplicate: same amount, date, and description as another transaction",
			})
		}
	}

	// Row pass: amount outliers and missing descriptions, streamed.
	var batch []models.Transaction
	result := scoped(s.db.WithContext(ctx)).Order("id").
		FindInBatches(&batch, s.batchSize, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				txn := &batch[i]
				if guarded[txn.ID] {
					continue
				}
				var rows []models.Anomaly
				if a := unusualAmount(txn, *patterns); a != nil {
					rows = append(rows, *a)
				}
				if a := missingDescription(txn); a != nil {
					rows = append(rows, *a)
				}
				if len(rows) > 0 {
					guarded[txn.ID] = true
					flagged++
					pending = append(pending, rows...)
				}
			}
			return nil
		})
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}

	if len(pending) > 0 {
		if err := s.db.WithContext(ctx).CreateInBatches(&pending, s.batchSize).Error; err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		s.invalidate(ctx, userID)
		s.sink.Publish(notify.AnomaliesTopic(userID), notify.Event{
			"type":    "anomalies_detected",
			"flagged": flagged,
		})
	}
	return flagged, nil
}

// ListAnomalies retrieves a paginated list of the owner's anomalies, newest
// first, optionally filtered by resolution state.
func (s *anomalyService) ListAnomalies(userID string, resolved *bool, page pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error) {
	page.Defaults()

	owned := s.db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", userID)
	base := s.db.Model(&models.Anomaly{}).Where("transaction_id IN (?)", owned)
	if resolved != nil {
		base = base.Where("resolved = ?", *resolved)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var anomalies []models.Anomaly
	if err := base.Preload("Transaction").
		Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&anomalies).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(anomalies, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ResolveAnomalies marks the given anomalies resolved. The whole request is
// rejected if any id is missing or belongs to another owner.
func (s *anomalyService) ResolveAnomalies(ctx context.Context, userID string, anomalyIDs []string) (int64, error) {
	if len(anomalyIDs) == 0 {
		return 0, nil
	}

	owned := s.db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", userID)
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Anomaly{}).
		Where("id IN ? AND transaction_id IN (?)", anomalyIDs, owned).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count != int64(len(anomalyIDs)) {
		return 0, apperrors.ErrOwnershipMismatch
	}

	res := s.db.WithContext(ctx).Model(&models.Anomaly{}).
		Where("id IN ?", anomalyIDs).
		Update("resolved", true)
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}

	s.invalidate(ctx, userID)
	s.sink.Publish(notify.AnomaliesTopic(userID), notify.Event{
		"type":  "anomalies_resolved",
		"count": res.RowsAffected,
	})
	return res.RowsAffected, nil
}

// AnomalySummary returns unresolved anomaly counts by severity and type,
// cached for the anomalies TTL.
func (s *anomalyService) AnomalySummary(ctx context.Context, userID string) (*AnomalySummary, error) {
	key := cache.Key(userID, cache.NamespaceAnomalies)
	summary, err := cache.Fetch(ctx, s.cache, key, cache.TTLAnomalies, func() (AnomalySummary, error) {
		summary := AnomalySummary{
			BySeverity: make(map[models.Severity]int64),
			ByType:     make(map[models.AnomalyType]int64),
		}
		owned := s.db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", userID)

		type bucket struct {
			Severity    models.Severity
			AnomalyType models.AnomalyType
			Count       int64
		}
		var buckets []bucket
		err := s.db.WithContext(ctx).Model(&models.Anomaly{}).
			Select("severity, anomaly_type, COUNT(*) as count").
			Where("resolved = ? AND transaction_id IN (?)", false, owned).
			Group("severity, anomaly_type").
			Scan(&buckets).Error
		if err != nil {
			return summary, err
		}
		for _, b := range buckets {
			summary.Total += b.Count
			summary.BySeverity[b.Severity] += b.Count
			summary.ByType[b.AnomalyType] += b.Count
		}
		return summary, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &summary, nil
}

// amounts returns the owner's transaction amounts as floats, excluding
// excludeID when non-empty.
func (s *anomalyService) amounts(ctx context.Context, userID, excludeID string) ([]float64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var raw []decimal.Decimal
	if err := query.Pluck("amount", &raw).Error; err != nil {
		return nil, err
	}
	amounts := make([]float64, len(raw))
	for i, d := range raw {
		amounts[i] = d.InexactFloat64()
	}
	return amounts, nil
}

// unresolvedTransactionIDs returns the set of transaction ids that already
// carry an unresolved anomaly for this owner.
func (s *anomalyService) unresolvedTransactionIDs(ctx context.Context, userID string) (map[string]bool, error) {
	owned := s.db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", userID)
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Anomaly{}).
		Where("resolved = ? AND transaction_id IN (?)", false, owned).
		Distinct().
		Pluck("transaction_id", &ids).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// unusualAmount scores a transaction against the owner's spending patterns
// and returns an anomaly when the z-score clears the flagging threshold.
func unusualAmount(txn *models.Transaction, patterns SpendingPatterns) *models.Anomaly {
	if patterns.StdDev <= 0 {
		return nil
	}
	signed := (txn.Amount.InexactFloat64() - patterns.Mean) / patterns.StdDev
	z := math.Abs(signed)
	if z <= zFlag {
		return nil
	}

	severity := models.SeverityMedium
	switch {
	case z > zCritical:
		severity = models.SeverityCritical
	case z > zHigh:
		severity = models.SeverityHigh
	}
	direction := "unusually high"
	if signed < 0 {
		direction = "unusually low"
	}
	return &models.Anomaly{
		TransactionID: txn.ID,
		Type:          models.AnomalyUnusualAmount,
		Severity:      severity,
		Description:   fmt.Sprintf("Amount %s is %s compared to typical spending (z-score %.2f)", txn.Amount.StringFixed(2), direction, z),
	}
}

// missingDescription flags a transaction whose description is empty after
// trimming.
func missingDescription(txn *models.Transaction) *models.Anomaly {
	if strings.TrimSpace(txn.Description) != "" {
		return nil
	}
	return &models.Anomaly{
		TransactionID: txn.ID,
		Type:          models.AnomalyMissingDescription,
		Severity:      models.SeverityLow,
		Description:   "Transaction has no description",
	}
}

// computePatterns derives the detector's statistics from a sample of
// amounts. The standard deviation is the population form.
func computePatterns(amounts []float64) SpendingPatterns {
	p := SpendingPatterns{Count: len(amounts)}
	if p.Count == 0 {
		return p
	}

	p.Min = amounts[0]
	p.Max = amounts[0]
	var sum float64
	for _, a := range amounts {
		sum += a
		if a < p.Min {
			p.Min = a
		}
		if a > p.Max {
			p.Max = a
		}
	}
	p.Mean = sum / float64(p.Count)

	var sq float64
	for _, a := range amounts {
		d := a - p.Mean
		sq += d * d
	}
	p.StdDev = math.Sqrt(sq / float64(p.Count))

	sorted := make([]float64, len(amounts))
	copy(sorted, amounts)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		p.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		p.Median = sorted[mid]
	}
	return p
}

func (s *anomalyService) invalidate(ctx context.Context, userID string) {
	if err := cache.InvalidateOwner(ctx, s.cache, userID, cache.NamespaceAnomalies, cache.NamespaceDashboard); err != nil {
		logger.Get().Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}
