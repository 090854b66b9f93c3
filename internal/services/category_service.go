package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"ledgerly/internal/cache"
	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/logger"
	"ledgerly/internal/models"
)

// categoryService handles category-related business logic.
type categoryService struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB, c cache.Cache) CategoryServicer {
	return &categoryService{db: db, cache: c}
}

// CreateCategory creates a new category with a per-owner unique name.
func (s *categoryService) CreateCategory(userID, name, color string) (*models.Category, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	var count int64
	if err := s.db.Model(&models.Category{}).
		Where("user_id = ? AND name = ?", userID, name).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateCategory
	}

	category := &models.Category{
		UserID: userID,
		Name:   name,
		Color:  color,
	}
	if err := s.db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidate(context.Background(), userID)
	return category, nil
}

// GetCategories returns the owner's categories by name, cached.
func (s *categoryService) GetCategories(ctx context.Context, userID string) ([]models.Category, error) {
	key := cache.Key(userID, cache.NamespaceCategories)
	categories, err := cache.Fetch(ctx, s.cache, key, cache.TTLCategories, func() ([]models.Category, error) {
		var categories []models.Category
		err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("name ASC").
			Find(&categories).Error
		return categories, err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return categories, nil
}

// DeleteCategory removes a category. Its transactions lose their category
// reference and its rules are destroyed with it.
func (s *categoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCategoryNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Transaction{}).
			Where("user_id = ? AND category_id = ?", userID, categoryID).
			UpdateColumn("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND category_id = ?", userID, categoryID).
			Delete(&models.CategorizationRule{}).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *categoryService) invalidate(ctx context.Context, userID string) {
	err := cache.InvalidateOwner(ctx, s.cache, userID,
		cache.NamespaceCategories, cache.NamespaceRules, cache.NamespaceDashboard,
		cache.NamespaceUncategorized, cache.NamespaceCategoryStats)
	if err != nil {
		logger.Get().Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}
