// Package ws holds the WebSocket message contract and the Hub implementation.
// messages.go defines every frame exchanged with connected clients: the typed
// events the server pushes and the commands clients may invoke.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeNewBid        MsgType = "NewBid"
	MsgTypeOutbid        MsgType = "Outbid"
	MsgTypeStatusChanged MsgType = "AuctionStatusChanged"
	MsgTypeAuctionEnded  MsgType = "AuctionEnded"
	MsgTypeTimerSync     MsgType = "TimerSync"
	MsgTypeLiveStats     MsgType = "LiveStatsUpdated"
	MsgTypeBidAck        MsgType = "BidAccepted"
	MsgTypeError         MsgType = "error"
)

// Client-invoked methods, carried in the "method" field of a ClientCommand.
const (
	CmdJoinAuction      = "JoinAuction"
	CmdLeaveAuction     = "LeaveAuction"
	CmdRequestTimerSync = "RequestTimerSync"
	CmdPlaceBid         = "PlaceBid"
)

// ClientCommand is the inbound frame format. AuctionID is required for every
// method; Amount only for PlaceBid.
type ClientCommand struct {
	Method    string `json:"method"`
	AuctionID string `json:"auction_id"`
	Amount    string `json:"amount,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// NewBidEvent — room-scoped, published after every accepted bid.
// ──────────────────────────────────────────────────────────────────────────────

// NewBidEvent tells a room that the price moved. Events for one auction are
// delivered in acceptance order.
type NewBidEvent struct {
	Type            MsgType         `json:"type"`
	AuctionID       uuid.UUID       `json:"auction_id"`
	Bid             *domain.Bid     `json:"bid"`
	NewCurrentPrice decimal.Decimal `json:"new_current_price"`
	TotalBids       int64           `json:"total_bids"`
	TimeRemaining   int64           `json:"time_remaining"` // seconds
}

// ──────────────────────────────────────────────────────────────────────────────
// OutbidEvent — targeted at the displaced top bidder only.
// ──────────────────────────────────────────────────────────────────────────────

// OutbidEvent is delivered to every live connection of the bidder who just
// lost the top position. YourBid is the displaced bid's actual amount.
type OutbidEvent struct {
	Type           MsgType         `json:"type"`
	AuctionID      uuid.UUID       `json:"auction_id"`
	AuctionTitle   string          `json:"auction_title"`
	YourBid        decimal.Decimal `json:"your_bid"`
	NewHighestBid  decimal.Decimal `json:"new_highest_bid"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AuctionStatusEvent — room-scoped lifecycle transitions.
// ──────────────────────────────────────────────────────────────────────────────

// AuctionStatusEvent announces a lifecycle transition. Type is
// MsgTypeStatusChanged for activate/cancel and MsgTypeAuctionEnded for
// settlement; WinnerBid is present only on a completed auction.
type AuctionStatusEvent struct {
	Type      MsgType              `json:"type"`
	AuctionID uuid.UUID            `json:"auction_id"`
	Status    domain.AuctionStatus `json:"status"`
	Message   string               `json:"message"`
	WinnerBid *domain.Bid          `json:"winner_bid,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TimerSyncEvent — room-scoped countdown correction.
// ──────────────────────────────────────────────────────────────────────────────

// TimerSyncEvent lets clients re-anchor their countdown to the server clock.
type TimerSyncEvent struct {
	Type          MsgType   `json:"type"`
	AuctionID     uuid.UUID `json:"auction_id"`
	EndAt         time.Time `json:"end_at"`
	TimeRemaining int64     `json:"time_remaining"` // seconds
	ServerTime    time.Time `json:"server_time"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LiveStatsEvent — broadcast to every connection.
// ──────────────────────────────────────────────────────────────────────────────

// LiveStatsEvent carries advisory platform-wide counters. The connected-user
// gauge is in-process state, not an authoritative figure.
type LiveStatsEvent struct {
	Type           MsgType   `json:"type"`
	ActiveAuctions int64     `json:"active_auctions"`
	ConnectedUsers int       `json:"connected_users"`
	Timestamp      time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BidAckMessage / ErrorMessage — direct replies to one client.
// ──────────────────────────────────────────────────────────────────────────────

// BidAckMessage confirms a WS-placed bid to its sender. The room's NewBidEvent
// carries the full state; this is just the direct acknowledgement.
type BidAckMessage struct {
	Type            MsgType         `json:"type"`
	AuctionID       uuid.UUID       `json:"auction_id"`
	BidID           uuid.UUID       `json:"bid_id"`
	NewCurrentPrice decimal.Decimal `json:"new_current_price"`
}

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
