package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/lock"
	"github.com/openlot/auction/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces — persistence and event surfaces AuctionService needs
// ──────────────────────────────────────────────────────────────────────────────

// AuctionStore is the auction persistence surface. Implemented by
// repository.AuctionRepository; shared with BidService.
type AuctionStore interface {
	Create(ctx context.Context, a *domain.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error)
	GetWithTopBid(ctx context.Context, id uuid.UUID) (*domain.Auction, *domain.Bid, error)
	ListActive(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Auction, int, error)
	ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, now time.Time, limit, offset int) ([]*domain.Auction, int, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*domain.Auction, int, error)
	List(ctx context.Context, limit, offset int, status string) ([]*domain.Auction, int, error)
	Activate(ctx context.Context, id uuid.UUID, now time.Time) error
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkEnded(ctx context.Context, id uuid.UUID, status domain.AuctionStatus, winnerBidID *uuid.UUID, now time.Time) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

// LifecycleEvents is the minimal interface AuctionService needs from the WS
// hub. Implemented by ws.Hub; injected post-construction.
type LifecycleEvents interface {
	BroadcastAuctionStatus(auctionID uuid.UUID, event ws.AuctionStatusEvent)
}

// ──────────────────────────────────────────────────────────────────────────────
// AuctionService
// ──────────────────────────────────────────────────────────────────────────────

// AuctionService owns the auction lifecycle: creation, activation,
// cancellation, and end-of-auction settlement. Every state transition for one
// auction runs under the same per-auction lock that bids use, so a transition
// can never interleave with an in-flight bid.
type AuctionService struct {
	auctions   AuctionStore
	bids       BidStore
	categories CategoryStore
	locker     lock.Locker
	cfg        *config.Config
	logger     *slog.Logger
	events     LifecycleEvents // injected after the WS hub is built

	// 500 ms active-count cache feeding the live-stats broadcast
	countMu        sync.RWMutex
	cachedCount    int64
	countCacheTime time.Time
}

// NewAuctionService creates an AuctionService. Call SetEvents() after the WS
// hub is constructed.
func NewAuctionService(
	auctions AuctionStore,
	bids BidStore,
	categories CategoryStore,
	locker lock.Locker,
	cfg *config.Config,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions:   auctions,
		bids:       bids,
		categories: categories,
		locker:     locker,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetEvents injects the WS hub dependency post-construction.
func (s *AuctionService) SetEvents(e LifecycleEvents) { s.events = e }

// ──────────────────────────────────────────────────────────────────────────────
// CreateAuction
// ──────────────────────────────────────────────────────────────────────────────

// CreateAuction validates and persists a new listing. The auction is born
// pending when its start time lies in the future, active otherwise; a start
// time up to five minutes in the past is tolerated for client clock drift.
func (s *AuctionService) CreateAuction(ctx context.Context, req domain.CreateAuctionRequest) (*domain.Auction, error) {
	now := time.Now().UTC()
	if err := validateCreateAuction(&req, now); err != nil {
		return nil, err
	}

	exists, err := s.categories.Exists(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("auction_service.CreateAuction: category lookup: %w", err)
	}
	if !exists {
		return nil, domain.ErrCategoryNotFound
	}

	a := &domain.Auction{
		ID:            uuid.New(),
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		CurrentPrice:  req.StartingPrice,
		ReservePrice:  req.ReservePrice,
		MinIncrement:  req.MinIncrement,
		StartAt:       req.StartAt.UTC(),
		EndAt:         req.EndAt.UTC(),
		Status:        domain.InitialAuctionStatus(req.StartAt, now),
		SellerID:      req.SellerID,
		CategoryID:    req.CategoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("auction_service.CreateAuction: db: %w", err)
	}
	s.invalidateCountCache()
	return a, nil
}

// validateCreateAuction holds the semantic checks gin's binding cannot express.
func validateCreateAuction(req *domain.CreateAuctionRequest, now time.Time) error {
	if req.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if len(req.Title) > domain.MaxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", domain.ErrValidation, domain.MaxTitleLen)
	}
	if len(req.Description) > domain.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", domain.ErrValidation, domain.MaxDescriptionLen)
	}
	if req.ImageURL != nil && len(*req.ImageURL) > domain.MaxImageURLLen {
		return fmt.Errorf("%w: image_url exceeds %d characters", domain.ErrValidation, domain.MaxImageURLLen)
	}
	if !req.StartingPrice.IsPositive() {
		return fmt.Errorf("%w: starting_price must be positive", domain.ErrValidation)
	}
	if !req.MinIncrement.IsPositive() {
		return fmt.Errorf("%w: min_increment must be positive", domain.ErrValidation)
	}
	if req.ReservePrice != nil && req.ReservePrice.LessThan(req.StartingPrice) {
		return fmt.Errorf("%w: reserve_price cannot be below starting_price", domain.ErrValidation)
	}
	if req.StartAt.Before(now.Add(-domain.CreateStartSkew)) {
		return fmt.Errorf("%w: start_at lies too far in the past", domain.ErrValidation)
	}
	if !req.EndAt.After(req.StartAt) {
		return fmt.Errorf("%w: end_at must be after start_at", domain.ErrValidation)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetAuction returns an auction together with its current top bid.
func (s *AuctionService) GetAuction(ctx context.Context, id uuid.UUID) (*domain.AuctionDetail, error) {
	auction, topBid, err := s.auctions.GetWithTopBid(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auction_service.GetAuction: %w", err)
	}
	return &domain.AuctionDetail{Auction: auction, LatestBid: topBid}, nil
}

// ListActive returns the public listing of running auctions, soonest-ending
// first. Returns (auctions, total, error).
func (s *AuctionService) ListActive(ctx context.Context, limit, offset int) ([]*domain.Auction, int, error) {
	auctions, total, err := s.auctions.ListActive(ctx, time.Now().UTC(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("auction_service.ListActive: %w", err)
	}
	return auctions, total, nil
}

// ListActiveByCategory is ListActive restricted to one category, which must
// exist.
func (s *AuctionService) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, limit, offset int) ([]*domain.Auction, int, error) {
	exists, err := s.categories.Exists(ctx, categoryID)
	if err != nil {
		return nil, 0, fmt.Errorf("auction_service.ListActiveByCategory: category lookup: %w", err)
	}
	if !exists {
		return nil, 0, domain.ErrCategoryNotFound
	}
	auctions, total, err := s.auctions.ListActiveByCategory(ctx, categoryID, time.Now().UTC(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("auction_service.ListActiveByCategory: %w", err)
	}
	return auctions, total, nil
}

// ListBySeller returns all of one seller's auctions regardless of status.
func (s *AuctionService) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*domain.Auction, int, error) {
	auctions, total, err := s.auctions.ListBySeller(ctx, sellerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("auction_service.ListBySeller: %w", err)
	}
	return auctions, total, nil
}

// ListAll returns a paginated admin view across every status. status=""
// returns all.
func (s *AuctionService) ListAll(ctx context.Context, limit, offset int, status string) ([]*domain.Auction, int, error) {
	auctions, total, err := s.auctions.List(ctx, limit, offset, status)
	if err != nil {
		return nil, 0, fmt.Errorf("auction_service.ListAll: %w", err)
	}
	return auctions, total, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ActivateAuction / CancelAuction
// ──────────────────────────────────────────────────────────────────────────────

// ActivateAuction opens a pending auction for bidding ahead of its scheduled
// start. Seller-only; start_at is restamped to the activation instant.
func (s *AuctionService) ActivateAuction(ctx context.Context, id, callerID uuid.UUID) (*domain.Auction, error) {
	release, err := s.lockAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	auction, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auction_service.ActivateAuction: load: %w", err)
	}
	if auction.SellerID != callerID {
		return nil, domain.ErrNotAuctionSeller
	}
	if auction.Status != domain.StatusPending {
		return nil, domain.ErrAuctionNotPending
	}
	now := time.Now().UTC()
	if auction.HasEnded(now) {
		return nil, domain.ErrAuctionEnded
	}

	if err := s.auctions.Activate(ctx, id, now); err != nil {
		return nil, fmt.Errorf("auction_service.ActivateAuction: %w", err)
	}
	auction.Status = domain.StatusActive
	auction.StartAt = now
	auction.UpdatedAt = now
	s.invalidateCountCache()

	s.publishStatus(auction.ID, ws.AuctionStatusEvent{
		Type:      ws.MsgTypeStatusChanged,
		AuctionID: auction.ID,
		Status:    domain.StatusActive,
		Message:   "auction is now open for bidding",
	})
	return auction, nil
}

// CancelAuction withdraws a listing. Seller-only, and only while the auction
// has no accepted bids; the bid check runs under the auction's lock so it
// cannot race a concurrent PlaceBid.
func (s *AuctionService) CancelAuction(ctx context.Context, id, callerID uuid.UUID) (*domain.Auction, error) {
	return s.cancel(ctx, id, &callerID, false)
}

// AdminCancel force-cancels a non-terminal auction from the admin surface.
// Unlike the seller path it may cancel an auction that already has bids.
func (s *AuctionService) AdminCancel(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	return s.cancel(ctx, id, nil, true)
}

func (s *AuctionService) cancel(ctx context.Context, id uuid.UUID, callerID *uuid.UUID, force bool) (*domain.Auction, error) {
	release, err := s.lockAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	auction, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auction_service.cancel: load: %w", err)
	}
	if callerID != nil && auction.SellerID != *callerID {
		return nil, domain.ErrNotAuctionSeller
	}
	if auction.Status.IsTerminal() {
		return nil, domain.ErrAuctionEnded
	}
	if !force {
		hasBids, err := s.bids.HasBids(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("auction_service.cancel: bid check: %w", err)
		}
		if hasBids {
			return nil, domain.ErrAuctionHasBids
		}
	}

	now := time.Now().UTC()
	if err := s.auctions.Cancel(ctx, id, now); err != nil {
		return nil, fmt.Errorf("auction_service.cancel: %w", err)
	}
	auction.Status = domain.StatusCancelled
	auction.UpdatedAt = now
	s.invalidateCountCache()

	s.publishStatus(auction.ID, ws.AuctionStatusEvent{
		Type:      ws.MsgTypeStatusChanged,
		AuctionID: auction.ID,
		Status:    domain.StatusCancelled,
		Message:   "auction was cancelled",
	})
	return auction, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// SettleDue finalises every active auction whose end time has passed. Called
// by the scheduler each sweep; auctions settle in parallel up to the
// configured concurrency, each under its own lock. Returns the number of
// auctions settled.
func (s *AuctionService) SettleDue(ctx context.Context) (int, error) {
	const sweepBatch = 100

	due, err := s.auctions.ListDue(ctx, time.Now().UTC(), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("auction_service.SettleDue: list due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Scheduler.SweepConcurrency)
	for _, a := range due {
		auctionID := a.ID
		g.Go(func() error {
			if err := s.FinalizeAuction(gctx, auctionID); err != nil {
				// A conflict or busy lock means another instance is settling
				// this auction; skip it rather than failing the sweep.
				if domain.IsConflict(err) || domain.IsTransient(err) {
					return nil
				}
				s.logger.Error("settle failed", "auction_id", auctionID, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.invalidateCountCache()
	return len(due), nil
}

// FinalizeAuction settles one auction under its lock: completed with the top
// bid as winner when any bid exists, expired when none do. Settling an
// auction that is already terminal is a no-op.
func (s *AuctionService) FinalizeAuction(ctx context.Context, id uuid.UUID) error {
	release, err := s.lockAuction(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	auction, topBid, err := s.auctions.GetWithTopBid(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("auction_service.FinalizeAuction: load: %w", err)
	}
	if auction.Status.IsTerminal() {
		return nil // another instance settled it first
	}
	if auction.Status != domain.StatusActive {
		return domain.ErrAuctionNotActive
	}
	now := time.Now().UTC()
	if !auction.HasEnded(now) {
		return domain.ErrAuctionNotEnded
	}

	status := domain.StatusExpired
	var winnerBidID *uuid.UUID
	var winnerBid *domain.Bid
	if topBid != nil {
		status = domain.StatusCompleted
		winnerBidID = &topBid.ID
		winnerBid = topBid
	}

	if err := s.auctions.MarkEnded(ctx, id, status, winnerBidID, now); err != nil {
		return fmt.Errorf("auction_service.FinalizeAuction: %w", err)
	}

	message := "auction ended without a winner"
	if status == domain.StatusCompleted {
		message = "auction ended, winner decided"
	}
	s.publishStatus(id, ws.AuctionStatusEvent{
		Type:      ws.MsgTypeAuctionEnded,
		AuctionID: id,
		Status:    status,
		Message:   message,
		WinnerBid: winnerBid,
	})
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Timer sync & live stats
// ──────────────────────────────────────────────────────────────────────────────

// TimerSync returns the authoritative countdown for one auction. Implements
// the ws.TimerSource interface.
func (s *AuctionService) TimerSync(ctx context.Context, auctionID uuid.UUID) (*ws.TimerSyncEvent, error) {
	auction, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auction_service.TimerSync: %w", err)
	}
	now := time.Now().UTC()
	return &ws.TimerSyncEvent{
		Type:          ws.MsgTypeTimerSync,
		AuctionID:     auction.ID,
		EndAt:         auction.EndAt,
		TimeRemaining: secondsUntil(auction.EndAt, now),
		ServerTime:    now,
	}, nil
}

// CountActiveCached returns the number of running auctions, cached for 500 ms
// so high-frequency stats broadcasts do not hammer the database.
func (s *AuctionService) CountActiveCached(ctx context.Context) (int64, error) {
	const cacheDuration = 500 * time.Millisecond

	s.countMu.RLock()
	if !s.countCacheTime.IsZero() && time.Since(s.countCacheTime) < cacheDuration {
		n := s.cachedCount
		s.countMu.RUnlock()
		return n, nil
	}
	s.countMu.RUnlock()

	n, err := s.auctions.CountActive(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("auction_service.CountActiveCached: %w", err)
	}

	s.countMu.Lock()
	s.cachedCount = n
	s.countCacheTime = time.Now()
	s.countMu.Unlock()
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// lockAuction acquires the auction's lock and returns the release func.
// ErrNotAcquired surfaces as the transient ErrServerBusy.
func (s *AuctionService) lockAuction(ctx context.Context, id uuid.UUID) (func(), error) {
	key := auctionLockKey(id)
	token, err := s.locker.Acquire(ctx, key, s.cfg.Lock.WaitBudget, s.cfg.Lock.HoldTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, domain.ErrServerBusy
		}
		return nil, fmt.Errorf("auction_service: acquire lock: %w", err)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn("auction_service: lock release failed, TTL will reclaim it",
				"key", key, "err", err)
		}
	}, nil
}

func (s *AuctionService) publishStatus(auctionID uuid.UUID, event ws.AuctionStatusEvent) {
	if s.events != nil {
		s.events.BroadcastAuctionStatus(auctionID, event)
	}
}

func (s *AuctionService) invalidateCountCache() {
	s.countMu.Lock()
	s.countCacheTime = time.Time{}
	s.countMu.Unlock()
}
