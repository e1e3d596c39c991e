package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/domain"
)

// BidRepository handles all database operations for bids, including the
// atomic accept-and-reprice transaction at the heart of bid placement.
type BidRepository struct {
	db *sqlx.DB
}

// NewBidRepository creates a new BidRepository.
func NewBidRepository(db *sqlx.DB) *BidRepository {
	return &BidRepository{db: db}
}

// InsertAndReprice persists an accepted bid in one transaction: the auction's
// current_price moves from expectedPrice to the bid amount, the displaced top
// bid (when given) loses its is_winning flag, and the new bid is inserted as
// winning. Every step is guarded so that a row mutated since the caller's
// read aborts the whole transaction with ErrAuctionConflict; partial writes
// are impossible.
func (r *BidRepository) InsertAndReprice(ctx context.Context, b *domain.Bid, priorTopBidID *uuid.UUID, expectedPrice decimal.Decimal) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bid_repo.InsertAndReprice begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET current_price = $1, updated_at = $2
		WHERE id = $3 AND current_price = $4 AND status = 'active'`,
		b.Amount, b.PlacedAt, b.AuctionID, expectedPrice)
	if err != nil {
		return fmt.Errorf("bid_repo.InsertAndReprice reprice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAuctionConflict
	}

	if priorTopBidID != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE bids SET is_winning = FALSE WHERE id = $1 AND is_winning = TRUE`,
			*priorTopBidID)
		if err != nil {
			return fmt.Errorf("bid_repo.InsertAndReprice demote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAuctionConflict
		}
	}

	query := `
		INSERT INTO bids
			(id, auction_id, bidder_id, amount, placed_at, is_winning, source_address, is_auto_bid)
		VALUES
			(:id, :auction_id, :bidder_id, :amount, :placed_at, :is_winning, :source_address, :is_auto_bid)`
	if _, err = tx.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("bid_repo.InsertAndReprice insert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("bid_repo.InsertAndReprice commit: %w", err)
	}
	return nil
}

// GetByID fetches a bid by its primary key.
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bid, error) {
	var b domain.Bid
	err := r.db.GetContext(ctx, &b, `SELECT * FROM bids WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBidNotFound
		}
		return nil, fmt.Errorf("bid_repo.GetByID: %w", err)
	}
	return &b, nil
}

// ListByAuction returns an auction's bid history, newest first, paginated.
// Returns (bids, totalCount, error).
func (r *BidRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID); err != nil {
		return nil, 0, fmt.Errorf("bid_repo.ListByAuction count: %w", err)
	}
	var bids []*domain.Bid
	if err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY placed_at DESC LIMIT $2 OFFSET $3`,
		auctionID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("bid_repo.ListByAuction select: %w", err)
	}
	return bids, total, nil
}

// ListByBidder returns a user's bid history across auctions, newest first.
// Returns (bids, totalCount, error).
func (r *BidRepository) ListByBidder(ctx context.Context, bidderID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM bids WHERE bidder_id = $1`, bidderID); err != nil {
		return nil, 0, fmt.Errorf("bid_repo.ListByBidder count: %w", err)
	}
	var bids []*domain.Bid
	if err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE bidder_id = $1 ORDER BY placed_at DESC LIMIT $2 OFFSET $3`,
		bidderID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("bid_repo.ListByBidder select: %w", err)
	}
	return bids, total, nil
}

// CountByAuction returns the number of accepted bids on one auction.
func (r *BidRepository) CountByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID)
	if err != nil {
		return 0, fmt.Errorf("bid_repo.CountByAuction: %w", err)
	}
	return n, nil
}

// HasBids reports whether at least one bid exists for the auction.
func (r *BidRepository) HasBids(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM bids WHERE auction_id = $1)`, auctionID)
	if err != nil {
		return false, fmt.Errorf("bid_repo.HasBids: %w", err)
	}
	return exists, nil
}

// DailyStats aggregates bid activity since a cutoff for the admin dashboard.
type DailyStats struct {
	BidCount int64           `json:"bid_count" db:"bid_count"`
	Volume   decimal.Decimal `json:"volume"    db:"volume"`
}

// GetDailyStats returns the bid count and summed volume placed since the
// given instant.
func (r *BidRepository) GetDailyStats(ctx context.Context, since time.Time) (*DailyStats, error) {
	var s DailyStats
	err := r.db.GetContext(ctx, &s, `
		SELECT COUNT(*) AS bid_count, COALESCE(SUM(amount), 0) AS volume
		FROM bids
		WHERE placed_at >= $1`,
		since)
	if err != nil {
		return nil, fmt.Errorf("bid_repo.GetDailyStats: %w", err)
	}
	return &s, nil
}
