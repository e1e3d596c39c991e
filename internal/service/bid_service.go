package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/lock"
	"github.com/openlot/auction/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces — persistence and event surfaces BidService needs
// ──────────────────────────────────────────────────────────────────────────────

// BidStore is the bid persistence surface. Implemented by
// repository.BidRepository.
type BidStore interface {
	InsertAndReprice(ctx context.Context, b *domain.Bid, priorTopBidID *uuid.UUID, expectedPrice decimal.Decimal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bid, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error)
	ListByBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error)
	CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error)
	HasBids(ctx context.Context, auctionID uuid.UUID) (bool, error)
}

// BidEvents is the minimal interface BidService needs from the WS hub.
// Implemented by ws.Hub; injected post-construction.
type BidEvents interface {
	BroadcastNewBid(auctionID uuid.UUID, event ws.NewBidEvent)
	NotifyOutbid(userID uuid.UUID, event ws.OutbidEvent)
}

// ──────────────────────────────────────────────────────────────────────────────
// BidService
// ──────────────────────────────────────────────────────────────────────────────

// BidService orchestrates bid placement. All validation and writes for one
// auction happen under that auction's lock, so acceptance order is total and
// two bidders can never both pass the minimum check against the same price.
type BidService struct {
	auctions AuctionStore
	bids     BidStore
	locker   lock.Locker
	cfg      *config.Config
	logger   *slog.Logger
	events   BidEvents // injected after the WS hub is built
}

// NewBidService creates a BidService. Call SetEvents() after the WS hub is
// constructed to wire bid notifications.
func NewBidService(
	auctions AuctionStore,
	bids BidStore,
	locker lock.Locker,
	cfg *config.Config,
	logger *slog.Logger,
) *BidService {
	return &BidService{
		auctions: auctions,
		bids:     bids,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetEvents injects the WS hub dependency post-construction.
func (s *BidService) SetEvents(e BidEvents) { s.events = e }

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBid
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBid validates and records one bid. The whole pipeline — state checks,
// minimum-amount check, the accept-and-reprice transaction, and the event
// fan-out — runs inside the auction's critical section, so every observer
// sees bids in the exact order they were accepted.
//
// A bidder that cannot obtain the lock within the configured wait budget is
// turned away with ErrServerBusy and no side effects.
func (s *BidService) PlaceBid(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error) {
	// ── 1. Input validation (cheap checks before touching the lock) ──────────
	if !req.Amount.IsPositive() {
		return nil, domain.ErrBidAmountInvalid
	}
	if len(req.SourceAddress) > domain.MaxSourceAddrLen {
		req.SourceAddress = req.SourceAddress[:domain.MaxSourceAddrLen]
	}

	// ── 2. Acquire the auction's lock ────────────────────────────────────────
	key := auctionLockKey(req.AuctionID)
	token, err := s.locker.Acquire(ctx, key, s.cfg.Lock.WaitBudget, s.cfg.Lock.HoldTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domain.ErrServerBusy
		}
		return nil, fmt.Errorf("bid_service.PlaceBid: acquire lock: %w", err)
	}
	defer func() {
		// Release with a fresh context so a cancelled request still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn("bid_service: lock release failed, TTL will reclaim it",
				"key", key, "err", err)
		}
	}()

	// ── 3. Load auction + current top bid in one snapshot ────────────────────
	auction, topBid, err := s.auctions.GetWithTopBid(ctx, req.AuctionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("bid_service.PlaceBid: load auction: %w", err)
	}

	// ── 4. State checks ──────────────────────────────────────────────────────
	now := time.Now().UTC()
	if !auction.IsActive() {
		return nil, domain.ErrAuctionNotActive
	}
	if auction.HasEnded(now) {
		// Due but not yet swept; the sweeper will settle it shortly.
		return nil, domain.ErrAuctionEnded
	}
	if auction.SellerID == req.BidderID {
		return nil, domain.ErrSelfBid
	}

	// ── 5. Minimum-amount check against the snapshot price ───────────────────
	minimum := auction.NextMinimumBid(topBid)
	if req.Amount.LessThan(minimum) {
		return nil, &domain.BidTooLowError{MinRequired: minimum}
	}

	// ── 6. Persist: reprice auction, demote old top, insert new bid ──────────
	var sourceAddr *string
	if req.SourceAddress != "" {
		sourceAddr = &req.SourceAddress
	}
	var priorTopBidID *uuid.UUID
	if topBid != nil {
		priorTopBidID = &topBid.ID
	}
	bid := &domain.Bid{
		ID:            uuid.New(),
		AuctionID:     auction.ID,
		BidderID:      req.BidderID,
		Amount:        req.Amount,
		PlacedAt:      now,
		IsWinning:     true,
		SourceAddress: sourceAddr,
	}
	if err := s.bids.InsertAndReprice(ctx, bid, priorTopBidID, auction.CurrentPrice); err != nil {
		// Under the lock a conflict means another instance bypassed it
		// (misconfigured local lock across replicas); surface it as-is.
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("bid_service.PlaceBid: persist: %w", err)
	}

	// ── 7. Derive the result from post-write state ───────────────────────────
	// The bid is durable; a failed count must not fail the request, or the
	// client would retry and double-bid.
	totalBids, err := s.bids.CountByAuction(ctx, auction.ID)
	if err != nil {
		s.logger.Warn("bid_service: bid count unavailable after insert",
			"auction_id", auction.ID, "err", err)
		totalBids = 0
	}
	result := &domain.BidResult{
		Bid:             bid,
		NewCurrentPrice: bid.Amount,
		TotalBids:       totalBids,
	}
	if topBid != nil {
		bidderCopy := topBid.BidderID
		result.PreviousTopBidder = &bidderCopy
	}

	// ── 8. Event fan-out, still inside the critical section ──────────────────
	// Emitting before the lock drops keeps per-auction event order identical
	// to acceptance order.
	s.publishBidEvents(auction, bid, topBid, result)

	return result, nil
}

// publishBidEvents pushes the room broadcast and, when a top bidder was
// displaced, their targeted outbid notice.
func (s *BidService) publishBidEvents(auction *domain.Auction, bid *domain.Bid, displaced *domain.Bid, result *domain.BidResult) {
	if s.events == nil {
		return
	}
	now := time.Now().UTC()

	s.events.BroadcastNewBid(auction.ID, ws.NewBidEvent{
		Type:            ws.MsgTypeNewBid,
		AuctionID:       auction.ID,
		Bid:             bid,
		NewCurrentPrice: result.NewCurrentPrice,
		TotalBids:       result.TotalBids,
		TimeRemaining:   secondsUntil(auction.EndAt, now),
	})

	// Self-displacement (raising your own bid) earns no outbid notice.
	if displaced != nil && displaced.BidderID != bid.BidderID {
		s.events.NotifyOutbid(displaced.BidderID, ws.OutbidEvent{
			Type:           ws.MsgTypeOutbid,
			AuctionID:      auction.ID,
			AuctionTitle:   auction.Title,
			YourBid:        displaced.Amount,
			NewHighestBid:  bid.Amount,
			MinimumNextBid: bid.Amount.Add(auction.MinIncrement),
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// GetAuctionBids returns one auction's bid history, newest first. The auction
// must exist. Returns (bids, total, error).
func (s *BidService) GetAuctionBids(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		if domain.IsNotFound(err) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("bid_service.GetAuctionBids: load auction: %w", err)
	}
	bids, total, err := s.bids.ListByAuction(ctx, auctionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("bid_service.GetAuctionBids: %w", err)
	}
	return bids, total, nil
}

// GetMyBids returns a user's bids across all auctions, newest first.
func (s *BidService) GetMyBids(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	bids, total, err := s.bids.ListByBidder(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("bid_service.GetMyBids: %w", err)
	}
	return bids, total, nil
}
