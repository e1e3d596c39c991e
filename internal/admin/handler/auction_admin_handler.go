package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/repository"
	"github.com/openlot/auction/internal/service"
)

// AuctionAdminHandler serves /admin/auctions endpoints.
type AuctionAdminHandler struct {
	auctionSvc *service.AuctionService
	bidRepo    *repository.BidRepository
}

// NewAuctionAdminHandler creates an AuctionAdminHandler.
func NewAuctionAdminHandler(auctionSvc *service.AuctionService, bidRepo *repository.BidRepository) *AuctionAdminHandler {
	return &AuctionAdminHandler{auctionSvc: auctionSvc, bidRepo: bidRepo}
}

// List godoc
// GET /admin/auctions?page=1&limit=50&status=active
func (h *AuctionAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit
	status := c.Query("status")

	auctions, total, err := h.auctionSvc.ListAll(c.Request.Context(), limit, offset, status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not list auctions")
		return
	}
	respondList(c, "auctions", auctions, total, page, limit)
}

// Detail godoc
// GET /admin/auctions/:id
func (h *AuctionAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	ctx := c.Request.Context()
	detail, err := h.auctionSvc.GetAuction(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "could not load auction")
		return
	}

	bids, total, err := h.bidRepo.ListByAuction(ctx, id, 50, 0)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not load bids")
		return
	}

	respondSuccess(c, http.StatusOK, "auction detail", gin.H{
		"auction":    detail.Auction,
		"latest_bid": detail.LatestBid,
		"bids":       bids,
		"bid_count":  total,
	})
}

// Cancel godoc
// POST /admin/auctions/:id/cancel
// Force-cancels a non-terminal auction, even one with bids.
func (h *AuctionAdminHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.auctionSvc.AdminCancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, err.Error())
		case domain.IsBusinessRule(err):
			respondError(c, http.StatusBadRequest, err.Error())
		case domain.IsTransient(err):
			respondError(c, http.StatusServiceUnavailable, err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "could not cancel auction")
		}
		return
	}
	respondSuccess(c, http.StatusOK, "auction cancelled", auction)
}

// Settle godoc
// POST /admin/auctions/:id/settle
// Settles one due auction without waiting for the sweeper.
func (h *AuctionAdminHandler) Settle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	if err := h.auctionSvc.FinalizeAuction(c.Request.Context(), id); err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, err.Error())
		case domain.IsBusinessRule(err):
			respondError(c, http.StatusBadRequest, err.Error())
		case domain.IsTransient(err):
			respondError(c, http.StatusServiceUnavailable, err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "could not settle auction")
		}
		return
	}
	respondSuccess(c, http.StatusOK, "auction settled", gin.H{"auction_id": id})
}
