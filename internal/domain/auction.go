// Package domain defines the core business entities and types for the
// auction transaction system.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	StatusPending   AuctionStatus = "pending"   // created, bidding not yet open
	StatusActive    AuctionStatus = "active"    // accepting bids
	StatusCompleted AuctionStatus = "completed" // ended with at least one bid
	StatusCancelled AuctionStatus = "cancelled" // withdrawn by the seller before any bid
	StatusExpired   AuctionStatus = "expired"   // ended with no bids
)

// IsTerminal returns true for states an auction can never leave.
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Field bounds enforced at creation time.
const (
	MaxTitleLen        = 200
	MaxDescriptionLen  = 2000
	MaxImageURLLen     = 500
	MaxSourceAddrLen   = 45
	MaxCategoryNameLen = 100
)

// CreateStartSkew is how far in the past an auction's start time may lie at
// creation, tolerating client clock drift.
const CreateStartSkew = 5 * time.Minute

// ──────────────────────────────────────────────────────────────────────────────
// Auction
// ──────────────────────────────────────────────────────────────────────────────

// Auction represents a single timed listing. CurrentPrice equals
// StartingPrice until the first bid is accepted, then always the amount of
// the winning bid. ReservePrice is never serialised.
type Auction struct {
	ID            uuid.UUID        `json:"id"             db:"id"`
	Title         string           `json:"title"          db:"title"`
	Description   string           `json:"description"    db:"description"`
	ImageURL      *string          `json:"image_url"      db:"image_url"`
	StartingPrice decimal.Decimal  `json:"starting_price" db:"starting_price"`
	CurrentPrice  decimal.Decimal  `json:"current_price"  db:"current_price"`
	ReservePrice  *decimal.Decimal `json:"-"              db:"reserve_price"`
	MinIncrement  decimal.Decimal  `json:"min_increment"  db:"min_increment"`
	StartAt       time.Time        `json:"start_at"       db:"start_at"`
	EndAt         time.Time        `json:"end_at"         db:"end_at"`
	Status        AuctionStatus    `json:"status"         db:"status"`
	SellerID      uuid.UUID        `json:"seller_id"      db:"seller_id"`
	CategoryID    uuid.UUID        `json:"category_id"    db:"category_id"`
	WinnerBidID   *uuid.UUID       `json:"winner_bid_id"  db:"winner_bid_id"`
	CreatedAt     time.Time        `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"     db:"updated_at"`
}

// IsActive returns true while the auction is accepting bids.
func (a *Auction) IsActive() bool {
	return a.Status == StatusActive
}

// HasEnded reports whether the auction's end time has been reached.
func (a *Auction) HasEnded(now time.Time) bool {
	return !now.Before(a.EndAt)
}

// TimeLeft returns the duration remaining until the auction ends.
// Returns 0 if the end time has already passed.
func (a *Auction) TimeLeft() time.Duration {
	remaining := time.Until(a.EndAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextMinimumBid returns the smallest acceptable amount for the next bid:
// the starting price while no bid exists, otherwise the current price plus
// the minimum increment.
func (a *Auction) NextMinimumBid(top *Bid) decimal.Decimal {
	if top == nil {
		return a.StartingPrice
	}
	return a.CurrentPrice.Add(a.MinIncrement)
}

// InitialAuctionStatus derives the status a new auction is created in:
// pending when its start time lies in the future, active otherwise.
func InitialAuctionStatus(startAt, now time.Time) AuctionStatus {
	if startAt.After(now) {
		return StatusPending
	}
	return StatusActive
}

// ──────────────────────────────────────────────────────────────────────────────
// Requests & read models
// ──────────────────────────────────────────────────────────────────────────────

// CreateAuctionRequest carries the validated input for a new listing.
type CreateAuctionRequest struct {
	Title         string
	Description   string
	ImageURL      *string
	StartingPrice decimal.Decimal
	ReservePrice  *decimal.Decimal
	MinIncrement  decimal.Decimal
	StartAt       time.Time
	EndAt         time.Time
	SellerID      uuid.UUID
	CategoryID    uuid.UUID
}

// AuctionDetail pairs an auction with its current top bid for detail views.
// The bid is carried as a separate value rather than a back-reference so the
// read model stays cycle-free.
type AuctionDetail struct {
	Auction   *Auction `json:"auction"`
	LatestBid *Bid     `json:"latest_bid,omitempty"`
}
