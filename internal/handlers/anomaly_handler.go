package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/internal/pagination"
	"ledgerly/internal/services"
)

// AnomalyHandler handles anomaly-related requests.
type AnomalyHandler struct {
	anomalies services.AnomalyServicer
}

// NewAnomalyHandler creates a new AnomalyHandler.
func NewAnomalyHandler(anomalies services.AnomalyServicer) *AnomalyHandler {
	return &AnomalyHandler{anomalies: anomalies}
}

// ListAnomalies returns the owner's anomalies, optionally filtered by
// resolution state via the resolved query parameter.
func (h *AnomalyHandler) ListAnomalies(c *gin.Context) {
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

	var resolved *bool
	switch c.Query("resolved") {
	case "true":
		v := true
		resolved = &v
	case "false":
		v := false
		resolved = &v
	}

	result, err := h.anomalies.ListAnomalies(userID, resolved, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Summary returns unresolved anomaly counts by severity and type.
func (h *AnomalyHandler) Summary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.anomalies.AnomalySummary(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// SpendingPatterns returns the owner's cached amount statistics.
func (h *AnomalyHandler) SpendingPatterns(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	patterns, err := h.anomalies.SpendingPatterns(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

// Resolve bulk-resolves anomalies.
func (h *AnomalyHandler) Resolve(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		AnomalyIDs []string `json:"anomaly_ids" binding:"required,min=1,dive,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.anomalies.ResolveAnomalies(c.Request.Context(), userID, req.AnomalyIDs)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": count})
}
