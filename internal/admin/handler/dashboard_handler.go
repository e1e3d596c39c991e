package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/repository"
	"github.com/openlot/auction/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	auctionRepo *repository.AuctionRepository
	bidRepo     *repository.BidRepository
	userRepo    *repository.UserRepository
	hub         *ws.Hub
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	auctionRepo *repository.AuctionRepository,
	bidRepo *repository.BidRepository,
	userRepo *repository.UserRepository,
	hub *ws.Hub,
) *DashboardHandler {
	return &DashboardHandler{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		userRepo:    userRepo,
		hub:         hub,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	// ── Auction counts per lifecycle state ───────────────────────────────────
	byStatus, err := h.auctionRepo.CountByStatus(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load auction counts")
		return
	}

	// ── 24h bid activity ─────────────────────────────────────────────────────
	daily, err := h.bidRepo.GetDailyStats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load bid stats")
		return
	}

	// ── Registered users ─────────────────────────────────────────────────────
	userCount, err := h.userRepo.Count(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load user count")
		return
	}

	// ── WS connections (this instance only) ──────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, "dashboard", gin.H{
		"timestamp":          now,
		"auctions_by_status": byStatus,
		"bids_24h":           daily.BidCount,
		"bid_volume_24h":     daily.Volume,
		"registered_users":   userCount,
		"ws_connections":     wsConnections,
	})
}
