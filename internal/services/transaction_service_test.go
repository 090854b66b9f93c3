package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ledgerly/internal/cache"
	"ledgerly/internal/models"
	"ledgerly/internal/notify"
	"ledgerly/internal/pagination"
	"ledgerly/internal/predicate"
	"ledgerly/internal/testutil"
)

func newTransactionService(db *gorm.DB) TransactionServicer {
	c := cache.NewMemory()
	recorder := notify.NewRecorder()
	rules := NewCategorizationService(db, c, recorder, 1000)
	anomalies := NewAnomalyService(db, c, recorder, 1000)
	return NewTransactionService(db, c, recorder, rules, anomalies, 1000)
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func TestCreateTransaction(t *testing.T) {
	t.Run("zero_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateTransaction(user.ID, nil, decimal.Zero, "free lunch", today())
		testutil.AssertAppError(t, err, "ZERO_AMOUNT")
	})

	t.Run("missing_date", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateTransaction(user.ID, nil, decimal.NewFromFloat(-5), "lunch", time.Time{})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("foreign_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, other.ID)

		_, err := svc.CreateTransaction(user.ID, &category.ID, decimal.NewFromFloat(-5), "lunch", today())
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("runs_categorization_inline", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)
		category := testutil.CreateTestCategory(t, db, user.ID)
		testutil.CreateTestRule(t, db, user.ID, category.ID, 1,
			predicate.String(predicate.ColumnDescription, predicate.OpContains, "netflix"))

		txn, err := svc.CreateTransaction(user.ID, nil, decimal.NewFromFloat(-15.99), "Netflix", today())
		testutil.AssertNoError(t, err)
		if txn.CategoryID == nil || *txn.CategoryID != category.ID {
			t.Error("expected the rule pass to assign a category")
		}
	})

	t.Run("runs_detection_inline", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestTransaction(t, db, user.ID, -12.50, "Lunch")

		txn, err := svc.CreateTransaction(user.ID, nil, decimal.NewFromFloat(-12.50), "Lunch", today())
		testutil.AssertNoError(t, err)

		var anomaly models.Anomaly
		testutil.AssertNoError(t, db.First(&anomaly, "transaction_id = ?", txn.ID).Error)
		if anomaly.Type != models.AnomalyDuplicate {
			t.Errorf("expected a duplicate anomaly, got %s", anomaly.Type)
		}
	})
}

func TestGetUserTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionService(db)
	user := testutil.CreateTestUser(t, db)
	category := testutil.CreateTestCategory(t, db, user.ID)

	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	testutil.CreateTestTransactionOnDate(t, db, user.ID, -10, "march uncategorized", march)
	categorized := testutil.CreateTestCategorizedTransaction(t, db, user.ID, category.ID, -20, "categorized")
	testutil.CreateTestTransactionOnDate(t, db, user.ID, -30, "april uncategorized", april)

	page := pagination.PageRequest{Page: 1, PageSize: 10}

	t.Run("all", func(t *testing.T) {
		result, err := svc.GetUserTransactions(user.ID, page, TransactionFilter{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 3 {
			t.Errorf("expected 3, got %d", result.TotalItems)
		}
	})

	t.Run("date_range", func(t *testing.T) {
		from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
		result, err := svc.GetUserTransactions(user.ID, page, TransactionFilter{FromDate: &from, ToDate: &to})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 {
			t.Errorf("expected 1 in April, got %d", result.TotalItems)
		}
	})

	t.Run("by_category", func(t *testing.T) {
		result, err := svc.GetUserTransactions(user.ID, page, TransactionFilter{CategoryID: &category.ID})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 || result.Data[0].ID != categorized.ID {
			t.Error("expected only the categorized transaction")
		}
		if result.Data[0].Category == nil || result.Data[0].Category.ID != category.ID {
			t.Error("expected the category to be preloaded")
		}
	})

	t.Run("uncategorized", func(t *testing.T) {
		result, err := svc.GetUserTransactions(user.ID, page, TransactionFilter{Uncategorized: true})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 2 {
			t.Errorf("expected 2 uncategorized, got %d", result.TotalItems)
		}
	})
}

func TestGetTransactionByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	txn := testutil.CreateTestTransaction(t, db, user.ID, -10, "mine")

	got, err := svc.GetTransactionByID(user.ID, txn.ID)
	testutil.AssertNoError(t, err)
	if got.ID != txn.ID {
		t.Error("expected my transaction back")
	}

	_, err = svc.GetTransactionByID(other.ID, txn.ID)
	testutil.AssertAppError(t, err, "TRANSACTION_NOT_FOUND")
}

func TestBulkDelete(t *testing.T) {
	t.Run("removes_transactions_and_anomalies", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)

		testutil.CreateTestTransaction(t, db, user.ID, -12.50, "Lunch")
		dupe, err := svc.CreateTransaction(user.ID, nil, decimal.NewFromFloat(-12.50), "Lunch", today())
		testutil.AssertNoError(t, err)
		keep := testutil.CreateTestTransaction(t, db, user.ID, -99, "keep me")

		deleted, err := svc.BulkDelete(context.Background(), user.ID, []string{dupe.ID})
		testutil.AssertNoError(t, err)
		if deleted != 1 {
			t.Errorf("expected 1 deleted, got %d", deleted)
		}

		var anomalies int64
		testutil.AssertNoError(t, db.Model(&models.Anomaly{}).
			Where("transaction_id = ?", dupe.ID).Count(&anomalies).Error)
		if anomalies != 0 {
			t.Error("expected the transaction's anomalies to be deleted with it")
		}

		var remaining int64
		testutil.AssertNoError(t, db.Model(&models.Transaction{}).
			Where("id = ?", keep.ID).Count(&remaining).Error)
		if remaining != 1 {
			t.Error("expected unrelated transactions to survive")
		}
	})

	t.Run("foreign_id_rejects_everything", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTransactionService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		mine := testutil.CreateTestTransaction(t, db, user.ID, -10, "mine")
		theirs := testutil.CreateTestTransaction(t, db, other.ID, -10, "theirs")

		_, err := svc.BulkDelete(context.Background(), user.ID, []string{mine.ID, theirs.ID})
		testutil.AssertAppError(t, err, "OWNERSHIP_MISMATCH")

		var count int64
		testutil.AssertNoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
		if count != 2 {
			t.Error("expected no deletions on rejection")
		}
	})
}

func TestDashboardSummary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionService(db)
	user := testutil.CreateTestUser(t, db)
	category := testutil.CreateTestCategory(t, db, user.ID)

	testutil.CreateTestCategorizedTransaction(t, db, user.ID, category.ID, -40, "categorized")
	testutil.CreateTestTransaction(t, db, user.ID, -12.50, "Lunch")
	dupe := testutil.CreateTestTransaction(t, db, user.ID, -12.50, "Lunch")
	anomalies := NewAnomalyService(db, cache.NewMemory(), notify.NewRecorder(), 1000)
	if _, err := anomalies.DetectSingle(dupe); err != nil {
		t.Fatalf("detection failed: %v", err)
	}

	summary, err := svc.DashboardSummary(context.Background(), user.ID)
	testutil.AssertNoError(t, err)

	if summary.TransactionCount != 3 {
		t.Errorf("expected 3 transactions, got %d", summary.TransactionCount)
	}
	if !summary.TotalAmount.Equal(decimal.NewFromFloat(-65)) {
		t.Errorf("expected total -65, got %s", summary.TotalAmount)
	}
	if summary.UncategorizedCount != 2 {
		t.Errorf("expected 2 uncategorized, got %d", summary.UncategorizedCount)
	}
	if summary.UnresolvedAnomaly != 1 {
		t.Errorf("expected 1 unresolved anomaly, got %d", summary.UnresolvedAnomaly)
	}
	if len(summary.RecentTransactions) != 3 {
		t.Errorf("expected 3 recent transactions, got %d", len(summary.RecentTransactions))
	}
}

func TestCategoryStats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTransactionService(db)
	user := testutil.CreateTestUser(t, db)
	groceries := testutil.CreateTestCategoryWithName(t, db, user.ID, "Groceries")
	dining := testutil.CreateTestCategoryWithName(t, db, user.ID, "Dining")

	testutil.CreateTestCategorizedTransaction(t, db, user.ID, groceries.ID, -30, "a")
	testutil.CreateTestCategorizedTransaction(t, db, user.ID, groceries.ID, -50, "b")
	testutil.CreateTestCategorizedTransaction(t, db, user.ID, dining.ID, -20, "c")
	testutil.CreateTestTransaction(t, db, user.ID, -99, "uncategorized")

	stats, err := svc.CategoryStats(context.Background(), user.ID)
	testutil.AssertNoError(t, err)

	if len(stats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(stats))
	}
	byName := make(map[string]CategoryStat, len(stats))
	for _, s := range stats {
		byName[s.CategoryName] = s
	}
	if s := byName["Groceries"]; s.Count != 2 || !s.Total.Equal(decimal.NewFromFloat(-80)) {
		t.Errorf("unexpected groceries stats: %+v", s)
	}
	if s := byName["Dining"]; s.Count != 1 || !s.Average.Equal(decimal.NewFromFloat(-20)) {
		t.Errorf("unexpected dining stats: %+v", s)
	}
}
