package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/api/middleware"
	"github.com/openlot/auction/internal/service"
)

// AuthHandler serves registration, login, and the token lifecycle.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Register godoc
// POST /api/auth/register
// Body: {"username":"alice","email":"a@example.com","password":"secret123"}
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "account created", resp)
}

// Login godoc
// POST /api/auth/login
// Body: {"email":"a@example.com","password":"secret123"}
func (h *AuthHandler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.authSvc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "logged in", resp)
}

// Refresh godoc
// POST /api/auth/refresh-token
// Body: {"refresh_token":"..."}
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	pair, err := h.authSvc.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "tokens rotated", gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Logout godoc
// POST /api/auth/logout [JWT]
// Body: {"refresh_token":"..."}
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if err := h.authSvc.Logout(c.Request.Context(), userID, body.RefreshToken); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "logged out", nil)
}

// Me godoc
// GET /api/me [JWT]
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.authSvc.Profile(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "profile", user.ToPublicProfile())
}
