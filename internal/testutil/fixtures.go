package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"ledgerly/internal/models"
	"ledgerly/internal/predicate"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCategory creates a category with a unique name.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string) *models.Category {
	t.Helper()
	name := fmt.Sprintf("Category %d", nextID())
	return CreateTestCategoryWithName(t, db, userID, name)
}

// CreateTestCategoryWithName creates a category with the given name.
func CreateTestCategoryWithName(t *testing.T, db *gorm.DB, userID, name string) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   name,
		Color:  "#4287f5",
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction creates an uncategorized transaction with the given
// amount and description, dated today.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, amount float64, description string) *models.Transaction {
	t.Helper()
	return CreateTestTransactionOnDate(t, db, userID, amount, description, time.Now().UTC().Truncate(24*time.Hour))
}

// CreateTestTransactionOnDate creates an uncategorized transaction on a
// specific date.
func CreateTestTransactionOnDate(t *testing.T, db *gorm.DB, userID string, amount float64, description string, date time.Time) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		UserID:      userID,
		Amount:      decimal.NewFromFloat(amount),
		Description: description,
		Date:        date,
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return txn
}

// CreateTestCategorizedTransaction creates a transaction already assigned to
// a category.
func CreateTestCategorizedTransaction(t *testing.T, db *gorm.DB, userID, categoryID string, amount float64, description string) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		UserID:      userID,
		CategoryID:  &categoryID,
		Amount:      decimal.NewFromFloat(amount),
		Description: description,
		Date:        time.Now().UTC().Truncate(24 * time.Hour),
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return txn
}

// CreateTestRule creates an active rule with the given predicate and priority.
func CreateTestRule(t *testing.T, db *gorm.DB, userID, categoryID string, priority int, pred predicate.Predicate) *models.CategorizationRule {
	t.Helper()

	rule := &models.CategorizationRule{
		UserID:     userID,
		CategoryID: categoryID,
		Name:       fmt.Sprintf("Rule %d", nextID()),
		Predicate:  pred,
		Priority:   priority,
		Active:     true,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to create test rule: %v", err)
	}
	return rule
}

// CreateTestImport creates a pending import row pointing at the given
// storage key.
func CreateTestImport(t *testing.T, db *gorm.DB, userID, storageKey string) *models.CsvImport {
	t.Helper()

	imp := &models.CsvImport{
		UserID:     userID,
		Filename:   fmt.Sprintf("import%d.csv", nextID()),
		Status:     models.ImportPending,
		StorageKey: storageKey,
	}
	if err := db.Create(imp).Error; err != nil {
		t.Fatalf("failed to create test import: %v", err)
	}
	return imp
}
