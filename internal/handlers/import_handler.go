package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/internal/pagination"
	"ledgerly/internal/services"
)

// ImportHandler handles CSV import requests.
type ImportHandler struct {
	imports services.ImportServicer
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(imports services.ImportServicer) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// PresignUpload issues a signed upload URL for a client-direct CSV upload.
func (h *ImportHandler) PresignUpload(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		Filename    string `json:"filename" binding:"required"`
		ContentType string `json:"content_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.imports.PresignUpload(userID, req.Filename, req.ContentType)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload": ticket})
}

// CreateImport records an uploaded file and queues its processing.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req struct {
		Filename   string `json:"filename" binding:"required"`
		StorageKey string `json:"storage_key" binding:"required"`
		FileSize   int64  `json:"file_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imp, err := h.imports.CreateImport(userID, req.Filename, req.StorageKey, req.FileSize)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"import": imp})
}

// ListImports returns the owner's imports, newest first.
func (h *ImportHandler) ListImports(c *gin.Context) {
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

	result, err := h.imports.ListImports(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetImport returns one import with its progress figures.
func (h *ImportHandler) GetImport(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	imp, err := h.imports.GetImport(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"import":               imp,
		"progress_percentage":  imp.ProgressPercentage(),
		"processing_time_secs": imp.ProcessingTimeSeconds(),
		"rows_per_second":      imp.RowsPerSecond(),
	})
}
