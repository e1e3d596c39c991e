package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 1024             // bytes; inbound frames are small commands
	sendBufferSize = 256              // messages in each client send channel

	commandTimeout = 10 * time.Second // budget for a client-invoked action
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces — actions the hub delegates to the service layer
// ──────────────────────────────────────────────────────────────────────────────

// BidPlacer is the minimal interface the hub needs to serve the PlaceBid
// command. Implemented by service.BidService; injected post-construction to
// break the service → hub → service cycle.
type BidPlacer interface {
	PlaceBid(ctx context.Context, req domain.PlaceBidRequest) (*domain.BidResult, error)
}

// TimerSource serves RequestTimerSync. Implemented by service.AuctionService.
type TimerSource interface {
	TimerSync(ctx context.Context, auctionID uuid.UUID) (*TimerSyncEvent, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint. A client may be in any
// number of auction rooms; membership is tracked on both sides under hub.mu.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte             // buffered outbound message queue
	userID uuid.UUID               // zero-value = anonymous
	rooms  map[uuid.UUID]struct{}  // auctions this client joined
	remote string                  // source address recorded on WS-placed bids
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// Hub maintains the set of active clients and routes messages by room
// (auction_<id>), by user, or to everyone. Run() must be called in a dedicated
// goroutine before ServeWs is used.
type Hub struct {
	// Registered clients, room and user indexes, and their concurrency guard.
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[uuid.UUID]map[*Client]struct{} // auction id → members
	users   map[uuid.UUID]map[*Client]struct{} // user id → live connections

	// channels consumed by Run()
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// JWT signing key (optional – if empty, all connections are anonymous)
	jwtSecret []byte

	// injected after the services are built
	bids   BidPlacer
	timers TimerSource

	// upgrader is safe for concurrent use after construction.
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run().
// jwtSecret may be nil; WS connections will then be treated as anonymous.
func NewHub(jwtSecret []byte, allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		users:      make(map[uuid.UUID]map[*Client]struct{}),
		broadcast:  make(chan []byte, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		jwtSecret:  jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// SetBidPlacer injects the bid service post-construction.
func (h *Hub) SetBidPlacer(b BidPlacer) { h.bids = b }

// SetTimerSource injects the auction service post-construction.
func (h *Hub) SetTimerSource(t TimerSource) { h.timers = t }

// ──────────────────────────────────────────────────────────────────────────────
// Run — hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration, and global broadcast events
// sequentially. Call it once as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.userID != uuid.Nil {
				if h.users[client.userID] == nil {
					h.users[client.userID] = make(map[*Client]struct{})
				}
				h.users[client.userID][client] = struct{}{}
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for auctionID := range client.rooms {
					h.removeFromRoomLocked(auctionID, client)
				}
				if client.userID != uuid.Nil {
					if conns := h.users[client.userID]; conns != nil {
						delete(conns, client)
						if len(conns) == 0 {
							delete(h.users, client.userID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer full — drop the message for this client.
					// The writePump will detect a stalled connection separately.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Rooms returns the ids of all auctions that currently have at least one
// subscriber. Used by the scheduler's timer-sync loop.
func (h *Hub) Rooms() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// ──────────────────────────────────────────────────────────────────────────────
// Room membership — idempotent join/leave
// ──────────────────────────────────────────────────────────────────────────────

// joinRoom subscribes a client to one auction's room. Joining a room twice is
// a no-op.
func (h *Hub) joinRoom(auctionID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[*Client]struct{})
	}
	h.rooms[auctionID][c] = struct{}{}
	c.rooms[auctionID] = struct{}{}
}

// leaveRoom unsubscribes a client from one auction's room. Leaving a room the
// client never joined is a no-op.
func (h *Hub) leaveRoom(auctionID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(auctionID, c)
	delete(c.rooms, auctionID)
}

func (h *Hub) removeFromRoomLocked(auctionID uuid.UUID, c *Client) {
	if members := h.rooms[auctionID]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs — HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades an HTTP request to a WebSocket connection, optionally
// authenticates the caller, and starts the read/write pumps. Credentials are
// accepted from the Authorization header or, for clients that cannot set
// headers on the handshake, the access_token query parameter. Missing or
// invalid credentials degrade to an anonymous subscribe-only connection.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWs: upgrade failed: %v", err)
		return
	}

	var userID uuid.UUID // zero = anonymous
	if token := bearerToken(r); token != "" && len(h.jwtSecret) > 0 {
		userID = h.parseJWT(token)
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		rooms:  make(map[uuid.UUID]struct{}),
		remote: r.RemoteAddr,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// bearerToken extracts the access token from the Authorization header or the
// access_token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// parseJWT extracts the user UUID from a signed access token.
// Returns uuid.Nil on any failure (treated as anonymous).
func (h *Hub) parseJWT(tokenString string) uuid.UUID {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return uuid.Nil
	}
	sub, _ := claims.GetSubject()
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection. It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket connection and dispatches client
// commands (join, leave, timer sync, bid). Malformed frames earn an error
// reply, never a disconnect. When the connection drops the client is
// unregistered and leaves all its rooms.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws.readPump: unexpected close for user %s: %v", c.userID, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.dispatch(c, raw)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Command dispatch
// ──────────────────────────────────────────────────────────────────────────────

// dispatch routes one inbound frame to its handler.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.SendError(c, "bad_frame", "frames must be JSON objects with a method field")
		return
	}

	auctionID, err := uuid.Parse(cmd.AuctionID)
	if err != nil {
		h.SendError(c, "bad_auction_id", "auction_id must be a valid uuid")
		return
	}

	switch cmd.Method {
	case CmdJoinAuction:
		h.joinRoom(auctionID, c)

	case CmdLeaveAuction:
		h.leaveRoom(auctionID, c)

	case CmdRequestTimerSync:
		h.handleTimerSync(c, auctionID)

	case CmdPlaceBid:
		h.handlePlaceBid(c, auctionID, cmd.Amount)

	default:
		h.SendError(c, "unknown_method", "unknown method: "+cmd.Method)
	}
}

// handleTimerSync replies to one client with the authoritative countdown.
func (h *Hub) handleTimerSync(c *Client, auctionID uuid.UUID) {
	if h.timers == nil {
		h.SendError(c, "unavailable", "timer sync is not available")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	event, err := h.timers.TimerSync(ctx, auctionID)
	if err != nil {
		h.SendError(c, "timer_sync_failed", err.Error())
		return
	}
	h.sendJSON(c, event)
}

// handlePlaceBid runs the full bid pipeline for an authenticated client. The
// room's NewBid broadcast happens inside the bid service; only the direct
// acknowledgement (or rejection) is sent here.
func (h *Hub) handlePlaceBid(c *Client, auctionID uuid.UUID, amount string) {
	if c.userID == uuid.Nil {
		h.SendError(c, "unauthorized", "placing bids requires authentication")
		return
	}
	if h.bids == nil {
		h.SendError(c, "unavailable", "bidding is not available")
		return
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil || !amt.IsPositive() {
		h.SendError(c, "bad_amount", domain.ErrBidAmountInvalid.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := h.bids.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID:     auctionID,
		BidderID:      c.userID,
		Amount:        amt,
		SourceAddress: c.remote,
	})
	if err != nil {
		h.SendError(c, "bid_rejected", err.Error())
		return
	}
	h.sendJSON(c, BidAckMessage{
		Type:            MsgTypeBidAck,
		AuctionID:       auctionID,
		BidID:           result.Bid.ID,
		NewCurrentPrice: result.NewCurrentPrice,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Publish helpers — implement service event sinks and scheduler.WsHub
// ──────────────────────────────────────────────────────────────────────────────

// BroadcastNewBid delivers a NewBidEvent to the auction's room.
func (h *Hub) BroadcastNewBid(auctionID uuid.UUID, event NewBidEvent) {
	h.publishToRoom(auctionID, event)
}

// NotifyOutbid delivers an OutbidEvent to every live connection of one user.
func (h *Hub) NotifyOutbid(userID uuid.UUID, event OutbidEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.users[userID] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// BroadcastAuctionStatus delivers a lifecycle transition to the room.
func (h *Hub) BroadcastAuctionStatus(auctionID uuid.UUID, event AuctionStatusEvent) {
	h.publishToRoom(auctionID, event)
}

// BroadcastTimerSync delivers a countdown correction to the room.
func (h *Hub) BroadcastTimerSync(auctionID uuid.UUID, event TimerSyncEvent) {
	h.publishToRoom(auctionID, event)
}

// BroadcastLiveStats delivers platform-wide stats to every connection.
func (h *Hub) BroadcastLiveStats(event LiveStatsEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("ws.Hub: broadcast channel full, message dropped")
	}
}

// publishToRoom is the common room delivery path. Slow members have the
// message dropped; delivery is best-effort by contract.
func (h *Hub) publishToRoom(auctionID uuid.UUID, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[auctionID] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// sendJSON writes a message directly to one client's send channel.
func (h *Hub) sendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// SendError writes an error message directly to one client's send channel.
func (h *Hub) SendError(client *Client, code, message string) {
	h.sendJSON(client, ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	})
}
