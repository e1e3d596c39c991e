package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/api/middleware"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/service"
)

// AuctionHandler serves the public auction surface: browsing, creation, and
// seller lifecycle actions.
type AuctionHandler struct {
	auctionSvc *service.AuctionService
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctionSvc *service.AuctionService) *AuctionHandler {
	return &AuctionHandler{auctionSvc: auctionSvc}
}

// createAuctionBody is the JSON shape for POST /api/auctions. Prices travel
// as decimal strings; times as RFC 3339.
type createAuctionBody struct {
	Title         string    `json:"title"          binding:"required"`
	Description   string    `json:"description"`
	ImageURL      *string   `json:"image_url"`
	StartingPrice string    `json:"starting_price" binding:"required"`
	ReservePrice  *string   `json:"reserve_price"`
	MinIncrement  string    `json:"min_increment"  binding:"required"`
	StartAt       time.Time `json:"start_at"       binding:"required"`
	EndAt         time.Time `json:"end_at"         binding:"required"`
	CategoryID    string    `json:"category_id"    binding:"required"`
}

// Create godoc
// POST /api/auctions [JWT]
func (h *AuctionHandler) Create(c *gin.Context) {
	sellerID := middleware.GetUserID(c)

	var body createAuctionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	startingPrice, err := decimal.NewFromString(body.StartingPrice)
	if err != nil {
		respondError(c, http.StatusBadRequest, "starting_price must be a decimal string")
		return
	}
	minIncrement, err := decimal.NewFromString(body.MinIncrement)
	if err != nil {
		respondError(c, http.StatusBadRequest, "min_increment must be a decimal string")
		return
	}
	var reservePrice *decimal.Decimal
	if body.ReservePrice != nil {
		rp, err := decimal.NewFromString(*body.ReservePrice)
		if err != nil {
			respondError(c, http.StatusBadRequest, "reserve_price must be a decimal string")
			return
		}
		reservePrice = &rp
	}
	categoryID, err := uuid.Parse(body.CategoryID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid category_id")
		return
	}

	auction, err := h.auctionSvc.CreateAuction(c.Request.Context(), domain.CreateAuctionRequest{
		Title:         body.Title,
		Description:   body.Description,
		ImageURL:      body.ImageURL,
		StartingPrice: startingPrice,
		ReservePrice:  reservePrice,
		MinIncrement:  minIncrement,
		StartAt:       body.StartAt,
		EndAt:         body.EndAt,
		SellerID:      sellerID,
		CategoryID:    categoryID,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "auction created", auction)
}

// List godoc
// GET /api/auctions?page=1&pageSize=20
func (h *AuctionHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	offset := (page - 1) * pageSize

	auctions, total, err := h.auctionSvc.ListActive(c.Request.Context(), pageSize, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, "active auctions", auctions, total, page, pageSize)
}

// ListByCategory godoc
// GET /api/auctions/category/:id?page=1&pageSize=20
func (h *AuctionHandler) ListByCategory(c *gin.Context) {
	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid category id")
		return
	}
	page, pageSize := parsePagination(c)
	offset := (page - 1) * pageSize

	auctions, total, err := h.auctionSvc.ListActiveByCategory(c.Request.Context(), categoryID, pageSize, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, "active auctions", auctions, total, page, pageSize)
}

// MyAuctions godoc
// GET /api/auctions/my-auctions?page=1&pageSize=20 [JWT]
func (h *AuctionHandler) MyAuctions(c *gin.Context) {
	sellerID := middleware.GetUserID(c)
	page, pageSize := parsePagination(c)
	offset := (page - 1) * pageSize

	auctions, total, err := h.auctionSvc.ListBySeller(c.Request.Context(), sellerID, pageSize, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, "your auctions", auctions, total, page, pageSize)
}

// Get godoc
// GET /api/auctions/:id
func (h *AuctionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	detail, err := h.auctionSvc.GetAuction(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "auction", detail)
}

// Activate godoc
// POST /api/auctions/:id/activate [JWT, seller only]
func (h *AuctionHandler) Activate(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.auctionSvc.ActivateAuction(c.Request.Context(), id, callerID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "auction activated", auction)
}

// Cancel godoc
// DELETE /api/auctions/:id [JWT, seller only, zero bids]
func (h *AuctionHandler) Cancel(c *gin.Context) {
	callerID := middleware.GetUserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.auctionSvc.CancelAuction(c.Request.Context(), id, callerID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "auction cancelled", auction)
}
