package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/api/middleware"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/service"
)

// BidHandler serves bid placement and bid history endpoints.
type BidHandler struct {
	bidSvc *service.BidService
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(bidSvc *service.BidService) *BidHandler {
	return &BidHandler{bidSvc: bidSvc}
}

// Place godoc
// POST /api/auctions/:id/bids [JWT]
// Body: {"amount":"150.00"}
func (h *BidHandler) Place(c *gin.Context) {
	bidderID := middleware.GetUserID(c)

	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrBidAmountInvalid.Error())
		return
	}

	result, err := h.bidSvc.PlaceBid(c.Request.Context(), domain.PlaceBidRequest{
		AuctionID:     auctionID,
		BidderID:      bidderID,
		Amount:        amount,
		SourceAddress: c.ClientIP(),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "bid accepted", result)
}

// ListByAuction godoc
// GET /api/auctions/:id/bids?page=1&pageSize=20
func (h *BidHandler) ListByAuction(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}
	page, pageSize := parsePagination(c)
	offset := (page - 1) * pageSize

	bids, total, err := h.bidSvc.GetAuctionBids(c.Request.Context(), auctionID, pageSize, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, "bid history", bids, total, page, pageSize)
}

// MyBids godoc
// GET /api/auctions/my-bids?page=1&pageSize=20 [JWT]
func (h *BidHandler) MyBids(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, pageSize := parsePagination(c)
	offset := (page - 1) * pageSize

	bids, total, err := h.bidSvc.GetMyBids(c.Request.Context(), userID, pageSize, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, "your bids", bids, total, page, pageSize)
}
