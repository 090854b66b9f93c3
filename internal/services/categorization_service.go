package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"ledgerly/internal/cache"
	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/logger"
	"ledgerly/internal/models"
	"ledgerly/internal/notify"
	"ledgerly/internal/pagination"
)

// categorizationService assigns categories to transactions by evaluating the
// owner's active rules in priority order. The first matching rule wins and an
// already-categorized transaction is never touched.
type categorizationService struct {
	db        *gorm.DB
	cache     cache.Cache
	sink      notify.Sink
	batchSize int
}

// NewCategorizationService creates a new CategorizationServicer.
func NewCategorizationService(db *gorm.DB, c cache.Cache, sink notify.Sink, batchSize int) CategorizationServicer {
	return &categorizationService{db: db, cache: c, sink: sink, batchSize: batchSize}
}

// loadActiveRules returns the owner's active rules sorted by ascending
// priority, creation time breaking ties. The snapshot is cached; every rule
// mutation invalidates it.
func (s *categorizationService) loadActiveRules(ctx context.Context, userID string) ([]models.CategorizationRule, error) {
	key := cache.Key(userID, cache.NamespaceRules)
	rules, err := cache.Fetch(ctx, s.cache, key, cache.TTLRules, func() ([]models.CategorizationRule, error) {
		var rules []models.CategorizationRule
		err := s.db.Where("user_id = ? AND active = ?", userID, true).
			Order("priority ASC, created_at ASC").
			Find(&rules).Error
		return rules, err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rules, nil
}

// firstMatch returns the winning rule for a transaction, or nil.
func firstMatch(rules []models.CategorizationRule, txn *models.Transaction) *models.CategorizationRule {
	for i := range rules {
		if rules[i].Matches(txn) {
			return &rules[i]
		}
	}
	return nil
}

// ApplySingle categorizes one transaction if a rule matches. The column is
// written directly so no model hooks run and categorization can never
// re-trigger itself.
func (s *categorizationService) ApplySingle(txn *models.Transaction) (bool, error) {
	if !txn.Uncategorized() {
		return false, nil
	}

	rules, err := s.loadActiveRules(context.Background(), txn.UserID)
	if err != nil {
		return false, err
	}

	rule := firstMatch(rules, txn)
	if rule == nil {
		return false, nil
	}

	if err := s.db.Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		UpdateColumn("category_id", rule.CategoryID).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	categoryID := rule.CategoryID
	txn.CategoryID = &categoryID

	s.invalidate(context.Background(), txn.UserID, cache.NamespaceDashboard, cache.NamespaceUncategorized, cache.NamespaceCategoryStats)
	return true, nil
}

// BulkApply categorizes the owner's uncategorized transactions in batches.
// With a non-empty transactionIDs slice the scan is restricted to those ids.
func (s *categorizationService) BulkApply(ctx context.Context, userID string, transactionIDs []string) (int64, error) {
	rules, err := s.loadActiveRules(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		return 0, nil
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ? AND category_id IS NULL", userID).
		Order("id")
	if len(transactionIDs) > 0 {
		query = query.Where("id IN ?", transactionIDs)
	}

	var categorized int64
	var batch []models.Transaction
	result := query.FindInBatches(&batch, s.batchSize, func(_ *gorm.DB, _ int) error {
		// Group the batch by winning rule so each group costs one UPDATE.
		groups := make(map[string][]string)
		for i := range batch {
			if rule := firstMatch(rules, &batch[i]); rule != nil {
				groups[rule.CategoryID] = append(groups[rule.CategoryID], batch[i].ID)
			}
		}
		for categoryID, ids := range groups {
			res := s.db.WithContext(ctx).Model(&models.Transaction{}).
				Where("id IN ?", ids).
				UpdateColumn("category_id", categoryID)
			if res.Error != nil {
				return res.Error
			}
			categorized += res.RowsAffected
		}
		return nil
	})
	if result.Error != nil {
		return categorized, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}

	if categorized > 0 {
		s.invalidate(ctx, userID, cache.NamespaceDashboard, cache.NamespaceUncategorized, cache.NamespaceCategoryStats)
		s.sink.Publish(notify.TransactionsTopic(userID), notify.Event{
			"type":  "rules_applied",
			"count": categorized,
		})
	}
	return categorized, nil
}

// BulkCategorize assigns one category to the given transactions. The whole
// request is rejected if any id is missing or foreign.
func (s *categorizationService) BulkCategorize(ctx context.Context, userID, categoryID string, transactionIDs []string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrCategoryNotFound
		}
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.checkOwnership(ctx, userID, transactionIDs); err != nil {
		return 0, err
	}

	var updated int64
	for _, chunk := range chunkIDs(transactionIDs, s.batchSize) {
		res := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("user_id = ? AND id IN ?", userID, chunk).
			UpdateColumn("category_id", categoryID)
		if res.Error != nil {
			return updated, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		updated += res.RowsAffected
	}

	s.invalidate(ctx, userID, cache.NamespaceDashboard, cache.NamespaceUncategorized, cache.NamespaceCategoryStats)
	s.sink.Publish(notify.TransactionsTopic(userID), notify.Event{
		"type":        "bulk_categorized",
		"category_id": categoryID,
		"count":       updated,
	})
	return updated, nil
}

// CreateRuleAndApply persists a validated rule and retroactively applies the
// owner's rule set. Nothing is persisted when validation fails.
func (s *categorizationService) CreateRuleAndApply(ctx context.Context, userID string, input RuleInput) (*models.CategorizationRule, int64, error) {
	var fields []apperrors.FieldError
	if input.Name == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "name is required"})
	}
	if input.Priority < 1 {
		fields = append(fields, apperrors.FieldError{Field: "priority", Message: "priority must be at least 1"})
	}
	if err := input.Predicate.Validate(); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "predicate", Message: err.Error()})
	}
	if len(fields) > 0 {
		return nil, 0, apperrors.NewValidation(fields)
	}

	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", input.CategoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperrors.ErrCategoryNotFound
		}
		return nil, 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CategorizationRule{}).
		Where("user_id = ? AND name = ?", userID, input.Name).
		Count(&count).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, 0, apperrors.ErrDuplicateRule
	}

	rule := &models.CategorizationRule{
		UserID:     userID,
		CategoryID: input.CategoryID,
		Name:       input.Name,
		Predicate:  input.Predicate,
		Priority:   input.Priority,
		Active:     true,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.invalidate(ctx, userID, cache.NamespaceRules)

	applied, err := s.BulkApply(ctx, userID, nil)
	if err != nil {
		return rule, 0, err
	}
	return rule, applied, nil
}

// ListRules retrieves a paginated list of the owner's rules by priority.
func (s *categorizationService) ListRules(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.CategorizationRule], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.CategorizationRule{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rules []models.CategorizationRule
	if err := base.Preload("Category").
		Order("priority ASC, created_at ASC").
		Scopes(pagination.Paginate(page)).
		Find(&rules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(rules, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// SetRulesActive toggles the given rules. Reactivation retroactively applies
// the rule set so newly active rules catch up on existing transactions.
func (s *categorizationService) SetRulesActive(ctx context.Context, userID string, ruleIDs []string, active bool) (int64, error) {
	if len(ruleIDs) == 0 {
		return 0, nil
	}
	if err := s.checkRuleOwnership(ctx, userID, ruleIDs); err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Model(&models.CategorizationRule{}).
		Where("user_id = ? AND id IN ?", userID, ruleIDs).
		Update("active", active)
	if res.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	s.invalidate(ctx, userID, cache.NamespaceRules)

	if active {
		if _, err := s.BulkApply(ctx, userID, nil); err != nil {
			return res.RowsAffected, err
		}
	}
	return res.RowsAffected, nil
}

// DeleteRules removes the given rules. Transactions they categorized keep
// their category.
func (s *categorizationService) DeleteRules(ctx context.Context, userID string, ruleIDs []string) error {
	if len(ruleIDs) == 0 {
		return nil
	}
	if err := s.checkRuleOwnership(ctx, userID, ruleIDs); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ruleIDs).
		Delete(&models.CategorizationRule{}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.invalidate(ctx, userID, cache.NamespaceRules)
	return nil
}

// ReorderRules rewrites rule priorities from an id→priority list.
func (s *categorizationService) ReorderRules(ctx context.Context, userID string, order []RulePriority) error {
	if len(order) == 0 {
		return nil
	}
	ids := make([]string, len(order))
	for i, entry := range order {
		ids[i] = entry.RuleID
	}
	if err := s.checkRuleOwnership(ctx, userID, ids); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range order {
			if err := tx.Model(&models.CategorizationRule{}).
				Where("user_id = ? AND id = ?", userID, entry.RuleID).
				UpdateColumn("priority", entry.Priority).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.invalidate(ctx, userID, cache.NamespaceRules)
	return nil
}

// checkOwnership verifies every transaction id exists and belongs to userID.
func (s *categorizationService) checkOwnership(ctx context.Context, userID string, ids []string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count != int64(len(ids)) {
		return apperrors.ErrOwnershipMismatch
	}
	return nil
}

// checkRuleOwnership verifies every rule id exists and belongs to userID.
func (s *categorizationService) checkRuleOwnership(ctx context.Context, userID string, ids []string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CategorizationRule{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count != int64(len(ids)) {
		return apperrors.ErrOwnershipMismatch
	}
	return nil
}

func (s *categorizationService) invalidate(ctx context.Context, userID string, namespaces ...cache.Namespace) {
	if err := cache.InvalidateOwner(ctx, s.cache, userID, namespaces...); err != nil {
		logger.Get().Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}

// chunkIDs splits ids into slices of at most size.
func chunkIDs(ids []string, size int) [][]string {
	if size < 1 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
