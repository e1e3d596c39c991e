package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Bid
// ──────────────────────────────────────────────────────────────────────────────

// Bid represents a single accepted offer inside an auction. A bid is
// immutable once written, except for IsWinning, which the bid coordinator
// toggles under the auction's lock when a higher bid displaces it. PlacedAt
// is server-assigned audit metadata; acceptance order is established by the
// per-auction lock, not the clock.
type Bid struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	AuctionID     uuid.UUID       `json:"auction_id"     db:"auction_id"`
	BidderID      uuid.UUID       `json:"bidder_id"      db:"bidder_id"`
	Amount        decimal.Decimal `json:"amount"         db:"amount"`
	PlacedAt      time.Time       `json:"placed_at"      db:"placed_at"`
	IsWinning     bool            `json:"is_winning"     db:"is_winning"`
	SourceAddress *string         `json:"source_address,omitempty" db:"source_address"`
	IsAutoBid     bool            `json:"is_auto_bid"    db:"is_auto_bid"` // reserved, always false
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBidRequest / BidResult — value objects used by BidService
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBidRequest carries the validated inputs for placing a bid.
type PlaceBidRequest struct {
	AuctionID     uuid.UUID
	BidderID      uuid.UUID
	Amount        decimal.Decimal
	SourceAddress string
}

// BidResult is returned to the caller after a bid is accepted.
type BidResult struct {
	Bid               *Bid            `json:"bid"`
	NewCurrentPrice   decimal.Decimal `json:"new_current_price"`
	TotalBids         int64           `json:"total_bids"`
	PreviousTopBidder *uuid.UUID      `json:"previous_top_bidder,omitempty"`
}

// OutbidNotice is the payload delivered to a bidder whose top position was
// just taken. YourBid carries the displaced bid's actual amount.
type OutbidNotice struct {
	AuctionID      uuid.UUID       `json:"auction_id"`
	AuctionTitle   string          `json:"auction_title"`
	YourBid        decimal.Decimal `json:"your_bid"`
	NewHighestBid  decimal.Decimal `json:"new_highest_bid"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
}
