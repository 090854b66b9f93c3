package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/pagination"
	"ledgerly/internal/predicate"
	"ledgerly/internal/services"
)

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	transactions services.TransactionServicer
	imports      services.ImportServicer
	rules        services.CategorizationServicer
	anomalies    services.AnomalyServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(
	transactions services.TransactionServicer,
	imports services.ImportServicer,
	rules services.CategorizationServicer,
	anomalies services.AnomalyServicer,
) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		imports:      imports,
		rules:        rules,
		anomalies:    anomalies,
	}
}

// CreateTransactionRequest represents the request payload for creating a transaction.
type CreateTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
	Date        string          `json:"date" binding:"required"`
	CategoryID  *string         `json:"category_id" binding:"omitempty,uuid"`
}

// TransactionIDsRequest is the payload for bulk transaction operations.
type TransactionIDsRequest struct {
	TransactionIDs []string `json:"transaction_ids" binding:"required,min=1,dive,uuid"`
}

// CreateTransaction creates one transaction and runs the inline
// categorization and anomaly checks.
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := predicate.ParseDate(req.Date)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid date"))
		return
	}

	txn, err := h.transactions.CreateTransaction(userID, req.CategoryID, req.Amount, req.Description, date)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// ListTransactions returns a filtered, paginated transaction list.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var filter services.TransactionFilter
	if from := c.Query("from"); from != "" {
		t, err := predicate.ParseDate(from)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid from date"))
			return
		}
		filter.FromDate = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := predicate.ParseDate(to)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid to date"))
			return
		}
		filter.ToDate = &t
	}
	if categoryID := c.Query("category_id"); categoryID != "" {
		filter.CategoryID = &categoryID
	}
	filter.Uncategorized = c.Query("uncategorized") == "true"

	result, err := h.transactions.GetUserTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTransaction returns one transaction with its category and anomalies.
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn, err := h.transactions.GetTransactionByID(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// BulkCategorize assigns one category to many transactions.
func (h *TransactionHandler) BulkCategorize(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		CategoryID     string   `json:"category_id" binding:"required,uuid"`
		TransactionIDs []string `json:"transaction_ids" binding:"required,min=1,dive,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.rules.BulkCategorize(c.Request.Context(), userID, req.CategoryID, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categorized": count})
}

// BulkDelete removes many transactions and their anomalies.
func (h *TransactionHandler) BulkDelete(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.transactions.BulkDelete(c.Request.Context(), userID, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}

// BulkInsert is the programmatic bulk insert path.
func (h *TransactionHandler) BulkInsert(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		Rows []struct {
			Amount      decimal.Decimal `json:"amount" binding:"required"`
			Description string          `json:"description"`
			Date        string          `json:"date" binding:"required"`
			CategoryID  *string         `json:"category_id" binding:"omitempty,uuid"`
		} `json:"rows" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows := make([]services.TransactionInput, 0, len(req.Rows))
	for _, raw := range req.Rows {
		date, _ := predicate.ParseDate(raw.Date)
		rows = append(rows, services.TransactionInput{
			Amount:      raw.Amount,
			Description: raw.Description,
			Date:        date,
			CategoryID:  raw.CategoryID,
		})
	}

	ids, err := h.imports.BulkInsertTransactions(c.Request.Context(), userID, rows)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(ids), "transaction_ids": ids})
}

// DetectAnomalies runs bulk anomaly detection for the owner.
func (h *TransactionHandler) DetectAnomalies(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		TransactionIDs []string `json:"transaction_ids" binding:"omitempty,dive,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flagged, err := h.anomalies.BulkDetect(c.Request.Context(), userID, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flagged": flagged})
}

// DashboardSummary returns the cached per-owner overview.
func (h *TransactionHandler) DashboardSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.transactions.DashboardSummary(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// CategoryStats returns the cached per-category aggregates.
func (h *TransactionHandler) CategoryStats(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.transactions.CategoryStats(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
