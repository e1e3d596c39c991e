package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/lock"
	"github.com/openlot/auction/internal/service"
)

// newBidHarness wires a BidService against the in-memory store, a real
// in-process locker, and an event recorder.
func newBidHarness() (*service.BidService, *memStore, *fakeEvents) {
	store := newMemStore()
	events := newFakeEvents()
	cfg := testConfig()
	svc := service.NewBidService(
		&fakeAuctions{s: store},
		&fakeBids{s: store},
		lock.NewLocalLocker(cfg.Lock.RetryInterval),
		cfg,
		testLogger(),
	)
	svc.SetEvents(events)
	return svc, store, events
}

func TestPlaceBidFirstBidAtStartingPrice(t *testing.T) {
	svc, store, events := newBidHarness()
	seller, bidder := uuid.New(), uuid.New()
	auction := makeAuction(seller)
	store.put(auction)

	// With no bids the minimum is the starting price itself.
	result, err := svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
		AuctionID: auction.ID,
		BidderID:  bidder,
		Amount:    dec("100.00"),
	})
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if !result.NewCurrentPrice.Equal(dec("100.00")) {
		t.Errorf("NewCurrentPrice = %s, want 100.00", result.NewCurrentPrice)
	}
	if result.TotalBids != 1 {
		t.Errorf("TotalBids = %d, want 1", result.TotalBids)
	}
	if result.PreviousTopBidder != nil {
		t.Errorf("PreviousTopBidder = %v, want nil for the first bid", result.PreviousTopBidder)
	}
	if !result.Bid.IsWinning {
		t.Error("first accepted bid should be winning")
	}

	if got := store.auction(auction.ID).CurrentPrice; !got.Equal(dec("100.00")) {
		t.Errorf("stored current price = %s, want 100.00", got)
	}
	if events.newBidCount() != 1 {
		t.Errorf("NewBid events = %d, want 1", events.newBidCount())
	}
}

func TestPlaceBidBelowMinimumRejected(t *testing.T) {
	svc, store, _ := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)

	_, err := svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    dec("99.99"),
	})
	if !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("err = %v, want ErrBidTooLow", err)
	}
	var tooLow *domain.BidTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("err = %T, want *BidTooLowError", err)
	}
	if !tooLow.MinRequired.Equal(dec("100.00")) {
		t.Errorf("MinRequired = %s, want 100.00", tooLow.MinRequired)
	}
}

func TestPlaceBidMinimumAfterFirstBid(t *testing.T) {
	svc, store, _ := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)
	ctx := context.Background()

	if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("100.00"),
	}); err != nil {
		t.Fatalf("first bid: %v", err)
	}

	// Exactly current price + increment is acceptable...
	if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("110.00"),
	}); err != nil {
		t.Fatalf("exact-minimum bid: %v", err)
	}

	// ...anything below it is not, and the error names the new minimum.
	_, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("115.00"),
	})
	var tooLow *domain.BidTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("err = %v, want *BidTooLowError", err)
	}
	if !tooLow.MinRequired.Equal(dec("120.00")) {
		t.Errorf("MinRequired = %s, want 120.00", tooLow.MinRequired)
	}
}

func TestPlaceBidOutbidCarriesDisplacedAmount(t *testing.T) {
	svc, store, events := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)
	first, second := uuid.New(), uuid.New()
	ctx := context.Background()

	if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: first, Amount: dec("150.00"),
	}); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	result, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: second, Amount: dec("160.00"),
	})
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	if result.PreviousTopBidder == nil || *result.PreviousTopBidder != first {
		t.Errorf("PreviousTopBidder = %v, want %s", result.PreviousTopBidder, first)
	}

	notices := events.outbidsFor(first)
	if len(notices) != 1 {
		t.Fatalf("outbid notices for first bidder = %d, want 1", len(notices))
	}
	n := notices[0]
	if !n.YourBid.Equal(dec("150.00")) {
		t.Errorf("YourBid = %s, want the displaced bid's amount 150.00", n.YourBid)
	}
	if !n.NewHighestBid.Equal(dec("160.00")) {
		t.Errorf("NewHighestBid = %s, want 160.00", n.NewHighestBid)
	}
	if !n.MinimumNextBid.Equal(dec("170.00")) {
		t.Errorf("MinimumNextBid = %s, want 170.00", n.MinimumNextBid)
	}
}

func TestPlaceBidSelfOutbidNoNotice(t *testing.T) {
	svc, store, events := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)
	bidder := uuid.New()
	ctx := context.Background()

	for _, amount := range []string{"100.00", "110.00"} {
		if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: auction.ID, BidderID: bidder, Amount: dec(amount),
		}); err != nil {
			t.Fatalf("bid %s: %v", amount, err)
		}
	}
	if got := events.outbidsFor(bidder); len(got) != 0 {
		t.Errorf("raising your own bid produced %d outbid notices, want 0", len(got))
	}
}

func TestPlaceBidStateChecks(t *testing.T) {
	seller := uuid.New()
	cases := []struct {
		name    string
		auction *domain.Auction
		bidder  uuid.UUID
		amount  string
		wantErr error
	}{
		{
			name:    "pending auction",
			auction: makeAuction(seller, withStatus(domain.StatusPending)),
			bidder:  uuid.New(),
			amount:  "100.00",
			wantErr: domain.ErrAuctionNotActive,
		},
		{
			name:    "cancelled auction",
			auction: makeAuction(seller, withStatus(domain.StatusCancelled)),
			bidder:  uuid.New(),
			amount:  "100.00",
			wantErr: domain.ErrAuctionNotActive,
		},
		{
			name:    "past end time",
			auction: makeAuction(seller, withEndAt(time.Now().UTC().Add(-time.Second))),
			bidder:  uuid.New(),
			amount:  "100.00",
			wantErr: domain.ErrAuctionEnded,
		},
		{
			name:    "seller bidding on own auction",
			auction: makeAuction(seller),
			bidder:  seller,
			amount:  "100.00",
			wantErr: domain.ErrSelfBid,
		},
		{
			name:    "zero amount",
			auction: makeAuction(seller),
			bidder:  uuid.New(),
			amount:  "0",
			wantErr: domain.ErrBidAmountInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newBidHarness()
			store.put(tc.auction)
			_, err := svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
				AuctionID: tc.auction.ID,
				BidderID:  tc.bidder,
				Amount:    dec(tc.amount),
			})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if n := store.bidCount(tc.auction.ID); n != 0 {
				t.Errorf("rejected bid left %d rows behind", n)
			}
		})
	}
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	svc, _, _ := newBidHarness()
	_, err := svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
		AuctionID: uuid.New(),
		BidderID:  uuid.New(),
		Amount:    dec("100.00"),
	})
	if !errors.Is(err, domain.ErrAuctionNotFound) {
		t.Errorf("err = %v, want ErrAuctionNotFound", err)
	}
}

// TestPlaceBidConcurrentSamePrice fires 20 bidders at the same amount. The
// per-auction lock serialises them: exactly one passes the minimum check, the
// rest observe the moved price and are rejected.
func TestPlaceBidConcurrentSamePrice(t *testing.T) {
	svc, store, events := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)

	const bidders = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		tooLow   int
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
				AuctionID: auction.ID,
				BidderID:  uuid.New(),
				Amount:    dec("100.00"),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrBidTooLow):
				tooLow++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}
	if tooLow != bidders-1 {
		t.Errorf("rejected as too low = %d, want %d", tooLow, bidders-1)
	}
	if got := store.auction(auction.ID).CurrentPrice; !got.Equal(dec("100.00")) {
		t.Errorf("final price = %s, want 100.00", got)
	}
	if n := store.bidCount(auction.ID); n != 1 {
		t.Errorf("persisted bids = %d, want 1", n)
	}
	if events.newBidCount() != 1 {
		t.Errorf("NewBid events = %d, want 1", events.newBidCount())
	}
}

// TestPlaceBidLockBusy holds the auction's lock past the wait budget and
// verifies the bidder is turned away with no side effects.
func TestPlaceBidLockBusy(t *testing.T) {
	store := newMemStore()
	events := newFakeEvents()
	cfg := testConfig()
	cfg.Lock.WaitBudget = 30 * time.Millisecond
	locker := lock.NewLocalLocker(cfg.Lock.RetryInterval)
	svc := service.NewBidService(&fakeAuctions{s: store}, &fakeBids{s: store}, locker, cfg, testLogger())
	svc.SetEvents(events)

	auction := makeAuction(uuid.New())
	store.put(auction)

	// Occupy the lock for longer than the bidder is willing to wait.
	token, err := locker.Acquire(context.Background(), "auction:"+auction.ID.String(), time.Second, time.Minute)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer locker.Release(context.Background(), "auction:"+auction.ID.String(), token)

	_, err = svc.PlaceBid(context.Background(), domain.PlaceBidRequest{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    dec("100.00"),
	})
	if !errors.Is(err, domain.ErrServerBusy) {
		t.Fatalf("err = %v, want ErrServerBusy", err)
	}
	if n := store.bidCount(auction.ID); n != 0 {
		t.Errorf("busy rejection left %d bids behind", n)
	}
	if events.newBidCount() != 0 {
		t.Errorf("busy rejection emitted %d events", events.newBidCount())
	}
}

func TestGetAuctionBids(t *testing.T) {
	svc, store, _ := newBidHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)
	ctx := context.Background()

	for i, amount := range []string{"100.00", "110.00", "120.00"} {
		if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec(amount),
		}); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
	}

	bids, total, err := svc.GetAuctionBids(ctx, auction.ID, 2, 0)
	if err != nil {
		t.Fatalf("GetAuctionBids: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(bids) != 2 {
		t.Errorf("page size = %d, want 2", len(bids))
	}

	if _, _, err := svc.GetAuctionBids(ctx, uuid.New(), 10, 0); !errors.Is(err, domain.ErrAuctionNotFound) {
		t.Errorf("unknown auction err = %v, want ErrAuctionNotFound", err)
	}
}

func TestGetMyBids(t *testing.T) {
	svc, store, _ := newBidHarness()
	a1 := makeAuction(uuid.New())
	a2 := makeAuction(uuid.New())
	store.put(a1)
	store.put(a2)
	bidder := uuid.New()
	ctx := context.Background()

	for _, a := range []*domain.Auction{a1, a2} {
		if _, err := svc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: a.ID, BidderID: bidder, Amount: dec("100.00"),
		}); err != nil {
			t.Fatalf("bid on %s: %v", a.ID, err)
		}
	}

	bids, total, err := svc.GetMyBids(ctx, bidder, 10, 0)
	if err != nil {
		t.Fatalf("GetMyBids: %v", err)
	}
	if total != 2 || len(bids) != 2 {
		t.Errorf("got %d/%d bids, want 2/2", len(bids), total)
	}
}
