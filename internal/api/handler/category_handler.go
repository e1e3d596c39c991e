package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openlot/auction/internal/service"
)

// CategoryHandler serves the public category taxonomy.
type CategoryHandler struct {
	categorySvc *service.CategoryService
}

// NewCategoryHandler creates a CategoryHandler.
func NewCategoryHandler(categorySvc *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categorySvc: categorySvc}
}

type createCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Create godoc
// POST /api/categories
func (h *CategoryHandler) Create(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	category, err := h.categorySvc.CreateCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "category created", category)
}

// List godoc
// GET /api/categories
func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.categorySvc.ListCategories(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "categories", categories)
}

// Get godoc
// GET /api/categories/:id
func (h *CategoryHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid category id")
		return
	}

	category, err := h.categorySvc.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "category", category)
}
