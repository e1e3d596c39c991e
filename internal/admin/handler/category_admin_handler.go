package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/service"
)

// CategoryAdminHandler serves /admin/categories endpoints.
type CategoryAdminHandler struct {
	categorySvc *service.CategoryService
}

// NewCategoryAdminHandler creates a CategoryAdminHandler.
func NewCategoryAdminHandler(categorySvc *service.CategoryService) *CategoryAdminHandler {
	return &CategoryAdminHandler{categorySvc: categorySvc}
}

// Create godoc
// POST /admin/categories
// Body: {"name": "Watches", "description": "Wrist and pocket watches"}
func (h *CategoryAdminHandler) Create(c *gin.Context) {
	var body struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	category, err := h.categorySvc.CreateCategory(c.Request.Context(), body.Name, body.Description)
	if err != nil {
		switch {
		case domain.IsConflict(err):
			respondError(c, http.StatusConflict, err.Error())
		case domain.IsBusinessRule(err):
			respondError(c, http.StatusBadRequest, err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "could not create category")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, "category created", category)
}
