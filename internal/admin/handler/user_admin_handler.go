package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/repository"
)

// UserAdminHandler serves /admin/users endpoints.
type UserAdminHandler struct {
	userRepo    *repository.UserRepository
	auctionRepo *repository.AuctionRepository
	bidRepo     *repository.BidRepository
}

// NewUserAdminHandler creates a UserAdminHandler.
func NewUserAdminHandler(userRepo *repository.UserRepository, auctionRepo *repository.AuctionRepository, bidRepo *repository.BidRepository) *UserAdminHandler {
	return &UserAdminHandler{userRepo: userRepo, auctionRepo: auctionRepo, bidRepo: bidRepo}
}

// List godoc
// GET /admin/users?page=1&limit=50
func (h *UserAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	users, total, err := h.userRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not list users")
		return
	}
	respondList(c, "users", users, total, page, limit)
}

// Detail godoc
// GET /admin/users/:id
// Returns the user plus their recent auctions and bids.
func (h *UserAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	ctx := c.Request.Context()
	user, err := h.userRepo.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "could not load user")
		return
	}

	auctions, auctionTotal, err := h.auctionRepo.ListBySeller(ctx, id, 20, 0)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load user's auctions")
		return
	}
	bids, bidTotal, err := h.bidRepo.ListByBidder(ctx, id, 20, 0)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load user's bids")
		return
	}

	respondSuccess(c, http.StatusOK, "user detail", gin.H{
		"user":          user,
		"auctions":      auctions,
		"auction_count": auctionTotal,
		"bids":          bids,
		"bid_count":     bidTotal,
	})
}

// Suspend godoc
// POST /admin/users/:id/suspend
func (h *UserAdminHandler) Suspend(c *gin.Context) {
	h.setActive(c, false)
}

// Activate godoc
// POST /admin/users/:id/activate
func (h *UserAdminHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *UserAdminHandler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.userRepo.SetActive(c.Request.Context(), id, active); err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "could not update user")
		return
	}
	respondSuccess(c, http.StatusOK, "user updated", gin.H{"user_id": id, "is_active": active})
}

// SetRole godoc
// POST /admin/users/:id/role
// Body: {"role": "ops"}
func (h *UserAdminHandler) SetRole(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}
	var body struct {
		Role string `json:"role" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	role := domain.UserRole(body.Role)
	validRoles := map[domain.UserRole]bool{
		domain.RoleUser:     true,
		domain.RoleAdmin:    true,
		domain.RoleOps:      true,
		domain.RoleReadOnly: true,
	}
	if !validRoles[role] {
		respondError(c, http.StatusBadRequest, "unknown role")
		return
	}
	if err = h.userRepo.UpdateRole(c.Request.Context(), id, role); err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "could not update role")
		return
	}
	respondSuccess(c, http.StatusOK, "role updated", gin.H{"user_id": id, "role": role})
}
