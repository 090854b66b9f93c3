package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/internal/services"
)

// CategoryHandler handles category-related requests.
type CategoryHandler struct {
	categories services.CategoryServicer
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(categories services.CategoryServicer) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// CreateCategoryRequest represents the request payload for creating a category.
type CreateCategoryRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color" binding:"omitempty,hex_color"`
}

// CreateCategory creates a new category.
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category, err := h.categories.CreateCategory(userID, req.Name, req.Color)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category})
}

// ListCategories returns the owner's categories.
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	categories, err := h.categories.GetCategories(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// DeleteCategory removes a category, detaching its transactions and
// destroying its rules.
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.categories.DeleteCategory(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
