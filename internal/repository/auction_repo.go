package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openlot/auction/internal/domain"
)

// AuctionRepository handles all database operations for auctions.
type AuctionRepository struct {
	db *sqlx.DB
}

// NewAuctionRepository creates a new AuctionRepository.
func NewAuctionRepository(db *sqlx.DB) *AuctionRepository {
	return &AuctionRepository{db: db}
}

// Create inserts a new auction row.
func (r *AuctionRepository) Create(ctx context.Context, a *domain.Auction) error {
	query := `
		INSERT INTO auctions
			(id, title, description, image_url, starting_price, current_price, reserve_price,
			 min_increment, start_at, end_at, status, seller_id, category_id, created_at, updated_at)
		VALUES
			(:id, :title, :description, :image_url, :starting_price, :current_price, :reserve_price,
			 :min_increment, :start_at, :end_at, :status, :seller_id, :category_id, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("auction_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches an auction by its primary key.
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	var a domain.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("auction_repo.GetByID: %w", err)
	}
	return &a, nil
}

// GetWithTopBid fetches an auction together with its current top bid (highest
// amount, earliest placed on ties). Both rows come from one repeatable-read
// snapshot so callers see a consistent pair. The bid is nil when the auction
// has no bids yet.
func (r *AuctionRepository) GetWithTopBid(ctx context.Context, id uuid.UUID) (*domain.Auction, *domain.Bid, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("auction_repo.GetWithTopBid begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var a domain.Auction
	if err := tx.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.ErrAuctionNotFound
		}
		return nil, nil, fmt.Errorf("auction_repo.GetWithTopBid auction: %w", err)
	}

	var b domain.Bid
	err = tx.GetContext(ctx, &b,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY amount DESC, placed_at ASC LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &a, nil, tx.Commit()
		}
		return nil, nil, fmt.Errorf("auction_repo.GetWithTopBid bid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("auction_repo.GetWithTopBid commit: %w", err)
	}
	return &a, &b, nil
}

// ListActive returns the paginated public listing: active auctions that have
// not yet ended, soonest-ending first. Returns (auctions, totalCount, error).
func (r *AuctionRepository) ListActive(ctx context.Context, now time.Time, limit, offset int) ([]*domain.Auction, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM auctions WHERE status = 'active' AND end_at > $1`, now); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListActive count: %w", err)
	}
	var auctions []*domain.Auction
	if err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions
		 WHERE status = 'active' AND end_at > $1
		 ORDER BY end_at ASC
		 LIMIT $2 OFFSET $3`,
		now, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListActive select: %w", err)
	}
	return auctions, total, nil
}

// ListActiveByCategory is ListActive restricted to one category.
func (r *AuctionRepository) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, now time.Time, limit, offset int) ([]*domain.Auction, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM auctions WHERE status = 'active' AND end_at > $1 AND category_id = $2`,
		now, categoryID); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListActiveByCategory count: %w", err)
	}
	var auctions []*domain.Auction
	if err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions
		 WHERE status = 'active' AND end_at > $1 AND category_id = $2
		 ORDER BY end_at ASC
		 LIMIT $3 OFFSET $4`,
		now, categoryID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListActiveByCategory select: %w", err)
	}
	return auctions, total, nil
}

// ListBySeller returns all of a seller's auctions regardless of status,
// newest first. Returns (auctions, totalCount, error).
func (r *AuctionRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]*domain.Auction, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM auctions WHERE seller_id = $1`, sellerID); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListBySeller count: %w", err)
	}
	var auctions []*domain.Auction
	if err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		sellerID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("auction_repo.ListBySeller select: %w", err)
	}
	return auctions, total, nil
}

// List returns a paginated slice of auctions filtered by optional status.
// status="" returns all statuses. Returns (auctions, totalCount, error).
func (r *AuctionRepository) List(ctx context.Context, limit, offset int, status string) ([]*domain.Auction, int, error) {
	var auctions []*domain.Auction
	var total int

	if status != "" {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM auctions WHERE status = $1`, status); err != nil {
			return nil, 0, fmt.Errorf("auction_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &auctions,
			`SELECT * FROM auctions WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("auction_repo.List select: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM auctions`); err != nil {
			return nil, 0, fmt.Errorf("auction_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &auctions,
			`SELECT * FROM auctions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset); err != nil {
			return nil, 0, fmt.Errorf("auction_repo.List select: %w", err)
		}
	}
	return auctions, total, nil
}

// Activate moves a pending auction to active and restamps start_at to the
// activation instant. Returns ErrAuctionConflict if the row was mutated since
// the caller's read.
func (r *AuctionRepository) Activate(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE auctions
		SET status = 'active', start_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND end_at > $2`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("auction_repo.Activate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAuctionConflict
	}
	return nil
}

// Cancel marks a pending or active auction as cancelled. The zero-bid rule is
// the caller's responsibility (checked under the auction lock).
func (r *AuctionRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE auctions
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status IN ('pending','active')`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("auction_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAuctionConflict
	}
	return nil
}

// MarkEnded finalises an active auction into completed or expired and records
// the winning bid when there is one. Returns ErrAuctionConflict when another
// instance settled the auction first.
func (r *AuctionRepository) MarkEnded(ctx context.Context, id uuid.UUID, status domain.AuctionStatus, winnerBidID *uuid.UUID, now time.Time) error {
	query := `
		UPDATE auctions
		SET status = $2, winner_bid_id = $3, updated_at = $4
		WHERE id = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, id, status, winnerBidID, now)
	if err != nil {
		return fmt.Errorf("auction_repo.MarkEnded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAuctionConflict
	}
	return nil
}

// ListDue returns active auctions whose end time has passed, oldest ending
// first, capped at limit per sweep.
func (r *AuctionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	var auctions []*domain.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE status = 'active' AND end_at <= $1 ORDER BY end_at ASC LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("auction_repo.ListDue: %w", err)
	}
	return auctions, nil
}

// CountActive returns the number of auctions currently open for bidding.
func (r *AuctionRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM auctions WHERE status = 'active' AND end_at > $1`, now)
	if err != nil {
		return 0, fmt.Errorf("auction_repo.CountActive: %w", err)
	}
	return n, nil
}

// StatusCount is one row of the per-status dashboard aggregate.
type StatusCount struct {
	Status string `json:"status" db:"status"`
	Count  int64  `json:"count"  db:"count"`
}

// CountByStatus returns auction counts grouped by lifecycle state.
func (r *AuctionRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.SelectContext(ctx, &counts,
		`SELECT status, COUNT(*) AS count FROM auctions GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("auction_repo.CountByStatus: %w", err)
	}
	return counts, nil
}
