package service_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// Shared fixtures
// ──────────────────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:     "test-secret-0123456789abcdef0123456789",
			Issuer:     "openlot-auction",
			Audience:   "openlot-clients",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Lock: config.LockConfig{
			WaitBudget:    200 * time.Millisecond,
			HoldTTL:       2 * time.Second,
			RetryInterval: time.Millisecond,
		},
		Scheduler: config.SchedulerConfig{
			SweepInterval:    time.Second,
			SweepConcurrency: 4,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}

// ──────────────────────────────────────────────────────────────────────────────
// memStore — shared in-memory state with the same conditional-update semantics
// as the SQL repositories. Exposed to the services through the fakeAuctions /
// fakeBids wrappers because AuctionStore and BidStore both declare GetByID.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*domain.Auction
	bids     []*domain.Bid
}

func newMemStore() *memStore {
	return &memStore{auctions: make(map[uuid.UUID]*domain.Auction)}
}

func (m *memStore) put(a *domain.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.auctions[a.ID] = &cp
}

func (m *memStore) auction(id uuid.UUID) *domain.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.auctions[id]
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func (m *memStore) bidCount(auctionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			n++
		}
	}
	return n
}

// topBidLocked picks the highest bid, earliest-placed winning ties.
// Callers must hold m.mu.
func (m *memStore) topBidLocked(auctionID uuid.UUID) *domain.Bid {
	var top *domain.Bid
	for _, b := range m.bids {
		if b.AuctionID != auctionID {
			continue
		}
		if top == nil ||
			b.Amount.GreaterThan(top.Amount) ||
			(b.Amount.Equal(top.Amount) && b.PlacedAt.Before(top.PlacedAt)) {
			top = b
		}
	}
	return top
}

// ──────────────────────────────────────────────────────────────────────────────
// fakeAuctions — service.AuctionStore over memStore
// ──────────────────────────────────────────────────────────────────────────────

type fakeAuctions struct{ s *memStore }

func (f *fakeAuctions) Create(_ context.Context, a *domain.Auction) error {
	f.s.put(a)
	return nil
}

func (f *fakeAuctions) GetByID(_ context.Context, id uuid.UUID) (*domain.Auction, error) {
	if a := f.s.auction(id); a != nil {
		return a, nil
	}
	return nil, domain.ErrAuctionNotFound
}

func (f *fakeAuctions) GetWithTopBid(_ context.Context, id uuid.UUID) (*domain.Auction, *domain.Bid, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	if a == nil {
		return nil, nil, domain.ErrAuctionNotFound
	}
	cp := *a
	if top := f.s.topBidLocked(id); top != nil {
		tc := *top
		return &cp, &tc, nil
	}
	return &cp, nil, nil
}

func (f *fakeAuctions) ListActive(_ context.Context, now time.Time, limit, offset int) ([]*domain.Auction, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.s.auctions {
		if a.Status == domain.StatusActive && a.EndAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(out[j].EndAt) })
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeAuctions) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID, now time.Time, limit, offset int) ([]*domain.Auction, int, error) {
	all, _, err := f.ListActive(ctx, now, 1<<30, 0)
	if err != nil {
		return nil, 0, err
	}
	var out []*domain.Auction
	for _, a := range all {
		if a.CategoryID == categoryID {
			out = append(out, a)
		}
	}
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeAuctions) ListBySeller(_ context.Context, sellerID uuid.UUID, limit, offset int) ([]*domain.Auction, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.s.auctions {
		if a.SellerID == sellerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeAuctions) List(_ context.Context, limit, offset int, status string) ([]*domain.Auction, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.s.auctions {
		if status == "" || string(a.Status) == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeAuctions) Activate(_ context.Context, id uuid.UUID, now time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	if a == nil || a.Status != domain.StatusPending || !a.EndAt.After(now) {
		return domain.ErrAuctionConflict
	}
	a.Status = domain.StatusActive
	a.StartAt = now
	a.UpdatedAt = now
	return nil
}

func (f *fakeAuctions) Cancel(_ context.Context, id uuid.UUID, now time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	if a == nil || a.Status.IsTerminal() {
		return domain.ErrAuctionConflict
	}
	a.Status = domain.StatusCancelled
	a.UpdatedAt = now
	return nil
}

func (f *fakeAuctions) MarkEnded(_ context.Context, id uuid.UUID, status domain.AuctionStatus, winnerBidID *uuid.UUID, now time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[id]
	if a == nil || a.Status != domain.StatusActive {
		return domain.ErrAuctionConflict
	}
	a.Status = status
	a.WinnerBidID = winnerBidID
	a.UpdatedAt = now
	return nil
}

func (f *fakeAuctions) ListDue(_ context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.s.auctions {
		if a.Status == domain.StatusActive && !a.EndAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAuctions) CountActive(_ context.Context, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, a := range f.s.auctions {
		if a.Status == domain.StatusActive && a.EndAt.After(now) {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// fakeBids — service.BidStore over memStore
// ──────────────────────────────────────────────────────────────────────────────

type fakeBids struct{ s *memStore }

func (f *fakeBids) InsertAndReprice(_ context.Context, b *domain.Bid, priorTopBidID *uuid.UUID, expectedPrice decimal.Decimal) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a := f.s.auctions[b.AuctionID]
	if a == nil || a.Status != domain.StatusActive || !a.CurrentPrice.Equal(expectedPrice) {
		return domain.ErrAuctionConflict
	}
	if priorTopBidID != nil {
		demoted := false
		for _, existing := range f.s.bids {
			if existing.ID == *priorTopBidID && existing.IsWinning {
				existing.IsWinning = false
				demoted = true
			}
		}
		if !demoted {
			return domain.ErrAuctionConflict
		}
	}
	a.CurrentPrice = b.Amount
	a.UpdatedAt = b.PlacedAt
	cp := *b
	f.s.bids = append(f.s.bids, &cp)
	return nil
}

func (f *fakeBids) GetByID(_ context.Context, id uuid.UUID) (*domain.Bid, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, b := range f.s.bids {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBidNotFound
}

func (f *fakeBids) ListByAuction(_ context.Context, auctionID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Bid
	for _, b := range f.s.bids {
		if b.AuctionID == auctionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeBids) ListByBidder(_ context.Context, bidderID uuid.UUID, limit, offset int) ([]*domain.Bid, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*domain.Bid
	for _, b := range f.s.bids {
		if b.BidderID == bidderID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return paginate(out, limit, offset), len(out), nil
}

func (f *fakeBids) CountByAuction(_ context.Context, auctionID uuid.UUID) (int64, error) {
	return int64(f.s.bidCount(auctionID)), nil
}

func (f *fakeBids) HasBids(_ context.Context, auctionID uuid.UUID) (bool, error) {
	return f.s.bidCount(auctionID) > 0, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// fakeCategories — service.CategoryStore
// ──────────────────────────────────────────────────────────────────────────────

type fakeCategories struct {
	mu   sync.Mutex
	cats map[uuid.UUID]*domain.Category
}

func newFakeCategories(ids ...uuid.UUID) *fakeCategories {
	f := &fakeCategories{cats: make(map[uuid.UUID]*domain.Category)}
	for _, id := range ids {
		f.cats[id] = &domain.Category{ID: id, Name: "cat-" + id.String()[:8]}
	}
	return f
}

func (f *fakeCategories) Create(_ context.Context, c *domain.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.cats {
		if existing.Name == c.Name {
			return domain.ErrCategoryNameTaken
		}
	}
	cp := *c
	f.cats[c.ID] = &cp
	return nil
}

func (f *fakeCategories) GetByID(_ context.Context, id uuid.UUID) (*domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cats[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategories) List(_ context.Context) ([]*domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Category
	for _, c := range f.cats {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCategories) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cats[id]
	return ok, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// fakeEvents — records BidEvents + LifecycleEvents calls
// ──────────────────────────────────────────────────────────────────────────────

type fakeEvents struct {
	mu       sync.Mutex
	newBids  []ws.NewBidEvent
	outbids  map[uuid.UUID][]ws.OutbidEvent
	statuses []ws.AuctionStatusEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{outbids: make(map[uuid.UUID][]ws.OutbidEvent)}
}

func (f *fakeEvents) BroadcastNewBid(_ uuid.UUID, event ws.NewBidEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newBids = append(f.newBids, event)
}

func (f *fakeEvents) NotifyOutbid(userID uuid.UUID, event ws.OutbidEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbids[userID] = append(f.outbids[userID], event)
}

func (f *fakeEvents) BroadcastAuctionStatus(_ uuid.UUID, event ws.AuctionStatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, event)
}

func (f *fakeEvents) newBidCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.newBids)
}

func (f *fakeEvents) outbidsFor(userID uuid.UUID) []ws.OutbidEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.OutbidEvent(nil), f.outbids[userID]...)
}

func (f *fakeEvents) lastStatus() *ws.AuctionStatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil
	}
	cp := f.statuses[len(f.statuses)-1]
	return &cp
}

// ──────────────────────────────────────────────────────────────────────────────
// Auction builder
// ──────────────────────────────────────────────────────────────────────────────

type auctionOpt func(*domain.Auction)

func withStatus(s domain.AuctionStatus) auctionOpt {
	return func(a *domain.Auction) { a.Status = s }
}

func withEndAt(t time.Time) auctionOpt {
	return func(a *domain.Auction) { a.EndAt = t }
}

func withReserve(price string) auctionOpt {
	return func(a *domain.Auction) {
		rp := dec(price)
		a.ReservePrice = &rp
	}
}

// makeAuction returns an active auction starting at 100.00 with a 10.00
// increment, ending an hour from now.
func makeAuction(sellerID uuid.UUID, opts ...auctionOpt) *domain.Auction {
	now := time.Now().UTC()
	a := &domain.Auction{
		ID:            uuid.New(),
		Title:         "vintage camera",
		StartingPrice: dec("100.00"),
		CurrentPrice:  dec("100.00"),
		MinIncrement:  dec("10.00"),
		StartAt:       now.Add(-time.Minute),
		EndAt:         now.Add(time.Hour),
		Status:        domain.StatusActive,
		SellerID:      sellerID,
		CategoryID:    uuid.New(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
