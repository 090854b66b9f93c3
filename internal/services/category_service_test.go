package services

import (
	"context"
	"testing"

	"ledgerly/internal/cache"
	"ledgerly/internal/models"
	"ledgerly/internal/predicate"
	"ledgerly/internal/testutil"
)

func TestCreateCategory(t *testing.T) {
	t.Run("creates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		user := testutil.CreateTestUser(t, db)

		category, err := svc.CreateCategory(user.ID, "Groceries", "#22c55e")
		testutil.AssertNoError(t, err)
		if category.ID == "" {
			t.Fatal("expected persisted category")
		}
	})

	t.Run("empty_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(user.ID, "", "#22c55e")
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("duplicate_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(user.ID, "Groceries", "#22c55e")
		testutil.AssertNoError(t, err)

		_, err = svc.CreateCategory(user.ID, "Groceries", "#ef4444")
		testutil.AssertAppError(t, err, "DUPLICATE_CATEGORY")
	})

	t.Run("same_name_for_different_owners", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		a := testutil.CreateTestUser(t, db)
		b := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(a.ID, "Groceries", "#22c55e")
		testutil.AssertNoError(t, err)
		_, err = svc.CreateCategory(b.ID, "Groceries", "#22c55e")
		testutil.AssertNoError(t, err)
	})
}

func TestGetCategories(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewCategoryService(db, cache.NewMemory())
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	testutil.CreateTestCategoryWithName(t, db, user.ID, "Rent")
	testutil.CreateTestCategoryWithName(t, db, user.ID, "Dining")
	testutil.CreateTestCategoryWithName(t, db, other.ID, "Theirs")

	categories, err := svc.GetCategories(context.Background(), user.ID)
	testutil.AssertNoError(t, err)
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
	if categories[0].Name != "Dining" || categories[1].Name != "Rent" {
		t.Error("expected categories ordered by name")
	}
}

func TestDeleteCategory(t *testing.T) {
	t.Run("nullifies_transactions_and_removes_rules", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID)
		txn := testutil.CreateTestCategorizedTransaction(t, db, user.ID, category.ID, -10, "x")
		testutil.CreateTestRule(t, db, user.ID, category.ID, 1,
			predicate.String(predicate.ColumnDescription, predicate.OpContains, "x"))

		testutil.AssertNoError(t, svc.DeleteCategory(context.Background(), user.ID, category.ID))

		var reloaded models.Transaction
		testutil.AssertNoError(t, db.First(&reloaded, "id = ?", txn.ID).Error)
		if reloaded.CategoryID != nil {
			t.Error("expected the transaction to lose its category reference")
		}

		var rules int64
		testutil.AssertNoError(t, db.Model(&models.CategorizationRule{}).Count(&rules).Error)
		if rules != 0 {
			t.Error("expected the category's rules to be deleted")
		}

		var categories int64
		testutil.AssertNoError(t, db.Model(&models.Category{}).Count(&categories).Error)
		if categories != 0 {
			t.Error("expected the category to be deleted")
		}
	})

	t.Run("foreign_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db, cache.NewMemory())
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, other.ID)

		err := svc.DeleteCategory(context.Background(), user.ID, category.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}
