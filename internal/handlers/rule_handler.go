package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/pagination"
	"ledgerly/internal/services"
)

// RuleHandler handles categorization rule requests.
type RuleHandler struct {
	rules services.CategorizationServicer
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(rules services.CategorizationServicer) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// RuleIDsRequest is the payload for bulk rule operations.
type RuleIDsRequest struct {
	RuleIDs []string `json:"rule_ids" binding:"required,min=1,dive,uuid"`
}

// ReorderRequest is the payload for rewriting rule priorities.
type ReorderRequest struct {
	Order []services.RulePriority `json:"order" binding:"required,min=1,dive"`
}

// CreateRule creates a rule and retroactively applies the rule set.
func (h *RuleHandler) CreateRule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req services.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, applied, err := h.rules.CreateRuleAndApply(c.Request.Context(), userID, req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"rule":                     rule,
		"transactions_categorized": applied,
	})
}

// ListRules returns the owner's rules by priority.
func (h *RuleHandler) ListRules(c *gin.Context) {
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

	result, err := h.rules.ListRules(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ApplyRules runs the rule set over the owner's uncategorized transactions.
func (h *RuleHandler) ApplyRules(c *gin.Context) {
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

	count, err := h.rules.BulkApply(c.Request.Context(), userID, req.TransactionIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions_categorized": count})
}

// SetRulesActive bulk-activates or deactivates rules.
func (h *RuleHandler) SetRulesActive(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		RuleIDs []string `json:"rule_ids" binding:"required,min=1,dive,uuid"`
		Active  *bool    `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.rules.SetRulesActive(c.Request.Context(), userID, req.RuleIDs, *req.Active)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

// DeleteRules bulk-deletes rules.
func (h *RuleHandler) DeleteRules(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RuleIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rules.DeleteRules(c.Request.Context(), userID, req.RuleIDs); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.RuleIDs)})
}

// ReorderRules rewrites rule priorities.
func (h *RuleHandler) ReorderRules(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Order) == 0 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "order is required"))
		return
	}

	if err := h.rules.ReorderRules(c.Request.Context(), userID, req.Order); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reordered": len(req.Order)})
}
