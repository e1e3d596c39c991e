package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response envelope
// ──────────────────────────────────────────────────────────────────────────────

// Envelope is the body of every API response:
// {"success": bool, "message": string, "data": ..., "errors": [...]}.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// respondSuccess writes a success envelope with the given status.
func respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondError writes a failure envelope and aborts the chain.
func respondError(c *gin.Context, status int, message string, errs ...string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

// listPayload wraps paginated results with their meta block.
type listPayload struct {
	Items interface{} `json:"items"`
	Meta  listMeta    `json:"meta"`
}

type listMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// respondList writes a paginated success envelope.
func respondList(c *gin.Context, message string, items interface{}, total, page, pageSize int) {
	respondSuccess(c, http.StatusOK, message, listPayload{
		Items: items,
		Meta:  listMeta{Total: total, Page: page, PageSize: pageSize},
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Domain error → HTTP status mapping
// ──────────────────────────────────────────────────────────────────────────────

// respondDomainError translates a service-layer error into the HTTP contract:
// rule violations 400, auth failures 401, ownership 403, missing entities 404,
// concurrent-mutation conflicts 409, busy locks 503, everything else a
// message-free 500. Internal details never leak into response bodies.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		respondError(c, http.StatusForbidden, err.Error())
	case domain.IsBusinessRule(err):
		respondError(c, http.StatusBadRequest, err.Error())
	case domain.IsAuthError(err):
		respondError(c, http.StatusUnauthorized, err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, err.Error())
	case domain.IsTransient(err):
		respondError(c, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Pagination
// ──────────────────────────────────────────────────────────────────────────────

// parsePagination reads ?page and ?pageSize with defaults 1/20, capping the
// page size at 100. Invalid values fall back to the defaults.
func parsePagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("pageSize", "20")); err == nil && v > 0 {
		pageSize = v
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
