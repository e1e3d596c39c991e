package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/lock"
	"github.com/openlot/auction/internal/service"
)

// newAuctionHarness wires an AuctionService and a sibling BidService over the
// same store and locker, mirroring how the server composes them.
func newAuctionHarness(categoryIDs ...uuid.UUID) (*service.AuctionService, *service.BidService, *memStore, *fakeEvents) {
	store := newMemStore()
	events := newFakeEvents()
	cfg := testConfig()
	locker := lock.NewLocalLocker(cfg.Lock.RetryInterval)
	auctions := &fakeAuctions{s: store}
	bids := &fakeBids{s: store}

	auctionSvc := service.NewAuctionService(auctions, bids, newFakeCategories(categoryIDs...), locker, cfg, testLogger())
	auctionSvc.SetEvents(events)
	bidSvc := service.NewBidService(auctions, bids, locker, cfg, testLogger())
	bidSvc.SetEvents(events)
	return auctionSvc, bidSvc, store, events
}

func validCreateRequest(categoryID uuid.UUID) domain.CreateAuctionRequest {
	now := time.Now().UTC()
	return domain.CreateAuctionRequest{
		Title:         "antique clock",
		Description:   "brass, working",
		StartingPrice: dec("50.00"),
		MinIncrement:  dec("5.00"),
		StartAt:       now.Add(time.Hour),
		EndAt:         now.Add(25 * time.Hour),
		SellerID:      uuid.New(),
		CategoryID:    categoryID,
	}
}

func TestCreateAuctionPendingWhenStartInFuture(t *testing.T) {
	catID := uuid.New()
	svc, _, store, _ := newAuctionHarness(catID)

	a, err := svc.CreateAuction(context.Background(), validCreateRequest(catID))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if a.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending for a future start", a.Status)
	}
	if !a.CurrentPrice.Equal(a.StartingPrice) {
		t.Errorf("current price = %s, want starting price %s", a.CurrentPrice, a.StartingPrice)
	}
	if store.auction(a.ID) == nil {
		t.Error("auction was not persisted")
	}
}

func TestCreateAuctionActiveWhenStartWithinSkew(t *testing.T) {
	catID := uuid.New()
	svc, _, _, _ := newAuctionHarness(catID)

	req := validCreateRequest(catID)
	req.StartAt = time.Now().UTC().Add(-2 * time.Minute) // inside the drift tolerance
	a, err := svc.CreateAuction(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if a.Status != domain.StatusActive {
		t.Errorf("status = %s, want active for a start already reached", a.Status)
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	catID := uuid.New()
	now := time.Now().UTC()

	mutations := []struct {
		name   string
		mutate func(*domain.CreateAuctionRequest)
	}{
		{"empty title", func(r *domain.CreateAuctionRequest) { r.Title = "" }},
		{"title too long", func(r *domain.CreateAuctionRequest) { r.Title = strings.Repeat("x", domain.MaxTitleLen+1) }},
		{"description too long", func(r *domain.CreateAuctionRequest) { r.Description = strings.Repeat("x", domain.MaxDescriptionLen+1) }},
		{"zero starting price", func(r *domain.CreateAuctionRequest) { r.StartingPrice = decimal.Zero }},
		{"negative increment", func(r *domain.CreateAuctionRequest) { r.MinIncrement = dec("-1") }},
		{"reserve below start", func(r *domain.CreateAuctionRequest) { rp := dec("10.00"); r.ReservePrice = &rp }},
		{"start too far in past", func(r *domain.CreateAuctionRequest) { r.StartAt = now.Add(-time.Hour) }},
		{"end before start", func(r *domain.CreateAuctionRequest) { r.EndAt = r.StartAt.Add(-time.Minute) }},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _, _ := newAuctionHarness(catID)
			req := validCreateRequest(catID)
			tc.mutate(&req)
			if _, err := svc.CreateAuction(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateAuctionUnknownCategory(t *testing.T) {
	svc, _, _, _ := newAuctionHarness() // no categories registered
	_, err := svc.CreateAuction(context.Background(), validCreateRequest(uuid.New()))
	if !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Errorf("err = %v, want ErrCategoryNotFound", err)
	}
}

func TestActivateAuction(t *testing.T) {
	svc, _, store, events := newAuctionHarness()
	seller := uuid.New()
	auction := makeAuction(seller, withStatus(domain.StatusPending))
	store.put(auction)
	ctx := context.Background()

	if _, err := svc.ActivateAuction(ctx, auction.ID, uuid.New()); !errors.Is(err, domain.ErrNotAuctionSeller) {
		t.Errorf("non-seller err = %v, want ErrNotAuctionSeller", err)
	}

	got, err := svc.ActivateAuction(ctx, auction.ID, seller)
	if err != nil {
		t.Fatalf("ActivateAuction: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if ev := events.lastStatus(); ev == nil || ev.Status != domain.StatusActive {
		t.Errorf("status event = %+v, want active broadcast", ev)
	}

	// Activating twice fails: the auction has left pending.
	if _, err := svc.ActivateAuction(ctx, auction.ID, seller); !errors.Is(err, domain.ErrAuctionNotPending) {
		t.Errorf("second activate err = %v, want ErrAuctionNotPending", err)
	}
}

func TestActivateAuctionAlreadyEnded(t *testing.T) {
	svc, _, store, _ := newAuctionHarness()
	seller := uuid.New()
	auction := makeAuction(seller,
		withStatus(domain.StatusPending),
		withEndAt(time.Now().UTC().Add(-time.Minute)))
	store.put(auction)

	if _, err := svc.ActivateAuction(context.Background(), auction.ID, seller); !errors.Is(err, domain.ErrAuctionEnded) {
		t.Errorf("err = %v, want ErrAuctionEnded", err)
	}
}

func TestCancelAuction(t *testing.T) {
	svc, bidSvc, store, events := newAuctionHarness()
	seller := uuid.New()
	ctx := context.Background()

	t.Run("without bids", func(t *testing.T) {
		auction := makeAuction(seller)
		store.put(auction)
		got, err := svc.CancelAuction(ctx, auction.ID, seller)
		if err != nil {
			t.Fatalf("CancelAuction: %v", err)
		}
		if got.Status != domain.StatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
		if ev := events.lastStatus(); ev == nil || ev.Status != domain.StatusCancelled {
			t.Errorf("status event = %+v, want cancelled broadcast", ev)
		}
	})

	t.Run("with bids", func(t *testing.T) {
		auction := makeAuction(seller)
		store.put(auction)
		if _, err := bidSvc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("100.00"),
		}); err != nil {
			t.Fatalf("seed bid: %v", err)
		}
		if _, err := svc.CancelAuction(ctx, auction.ID, seller); !errors.Is(err, domain.ErrAuctionHasBids) {
			t.Errorf("err = %v, want ErrAuctionHasBids", err)
		}
	})

	t.Run("non-seller", func(t *testing.T) {
		auction := makeAuction(seller)
		store.put(auction)
		if _, err := svc.CancelAuction(ctx, auction.ID, uuid.New()); !errors.Is(err, domain.ErrNotAuctionSeller) {
			t.Errorf("err = %v, want ErrNotAuctionSeller", err)
		}
	})

	t.Run("already terminal", func(t *testing.T) {
		auction := makeAuction(seller, withStatus(domain.StatusCompleted))
		store.put(auction)
		if _, err := svc.CancelAuction(ctx, auction.ID, seller); !errors.Is(err, domain.ErrAuctionEnded) {
			t.Errorf("err = %v, want ErrAuctionEnded", err)
		}
	})
}

func TestAdminCancelForcesThroughBids(t *testing.T) {
	svc, bidSvc, store, _ := newAuctionHarness()
	auction := makeAuction(uuid.New())
	store.put(auction)
	ctx := context.Background()

	if _, err := bidSvc.PlaceBid(ctx, domain.PlaceBidRequest{
		AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("100.00"),
	}); err != nil {
		t.Fatalf("seed bid: %v", err)
	}

	got, err := svc.AdminCancel(ctx, auction.ID)
	if err != nil {
		t.Fatalf("AdminCancel: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestFinalizeAuction(t *testing.T) {
	ctx := context.Background()
	pastEnd := withEndAt(time.Now().UTC().Add(-time.Second))

	t.Run("with winner", func(t *testing.T) {
		svc, bidSvc, store, events := newAuctionHarness()
		auction := makeAuction(uuid.New())
		store.put(auction)
		winner := uuid.New()
		if _, err := bidSvc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: auction.ID, BidderID: winner, Amount: dec("130.00"),
		}); err != nil {
			t.Fatalf("seed bid: %v", err)
		}
		// Move the clock past the end.
		ended := store.auction(auction.ID)
		ended.EndAt = time.Now().UTC().Add(-time.Second)
		store.put(ended)

		if err := svc.FinalizeAuction(ctx, auction.ID); err != nil {
			t.Fatalf("FinalizeAuction: %v", err)
		}
		settled := store.auction(auction.ID)
		if settled.Status != domain.StatusCompleted {
			t.Errorf("status = %s, want completed", settled.Status)
		}
		if settled.WinnerBidID == nil {
			t.Fatal("winner bid id not recorded")
		}
		ev := events.lastStatus()
		if ev == nil || ev.WinnerBid == nil || ev.WinnerBid.BidderID != winner {
			t.Errorf("ended event = %+v, want winner bid attached", ev)
		}
	})

	t.Run("no bids expires", func(t *testing.T) {
		svc, _, store, events := newAuctionHarness()
		auction := makeAuction(uuid.New(), pastEnd)
		store.put(auction)
		if err := svc.FinalizeAuction(ctx, auction.ID); err != nil {
			t.Fatalf("FinalizeAuction: %v", err)
		}
		if got := store.auction(auction.ID).Status; got != domain.StatusExpired {
			t.Errorf("status = %s, want expired", got)
		}
		if ev := events.lastStatus(); ev == nil || ev.WinnerBid != nil {
			t.Errorf("ended event = %+v, want no winner", ev)
		}
	})

	t.Run("reserve never blocks settlement", func(t *testing.T) {
		// The reserve price is hidden seller metadata; any bid at all means
		// the auction completes with that bid as winner.
		svc, bidSvc, store, _ := newAuctionHarness()
		auction := makeAuction(uuid.New(), withReserve("500.00"))
		store.put(auction)
		if _, err := bidSvc.PlaceBid(ctx, domain.PlaceBidRequest{
			AuctionID: auction.ID, BidderID: uuid.New(), Amount: dec("120.00"),
		}); err != nil {
			t.Fatalf("seed bid: %v", err)
		}
		ended := store.auction(auction.ID)
		ended.EndAt = time.Now().UTC().Add(-time.Second)
		store.put(ended)

		if err := svc.FinalizeAuction(ctx, auction.ID); err != nil {
			t.Fatalf("FinalizeAuction: %v", err)
		}
		settled := store.auction(auction.ID)
		if settled.Status != domain.StatusCompleted {
			t.Errorf("status = %s, want completed with a bid below the reserve", settled.Status)
		}
		if settled.WinnerBidID == nil {
			t.Error("top bid should be recorded as winner regardless of the reserve")
		}
	})

	t.Run("terminal is a no-op", func(t *testing.T) {
		svc, _, store, events := newAuctionHarness()
		auction := makeAuction(uuid.New(), withStatus(domain.StatusExpired), pastEnd)
		store.put(auction)
		if err := svc.FinalizeAuction(ctx, auction.ID); err != nil {
			t.Fatalf("FinalizeAuction on terminal: %v", err)
		}
		if events.lastStatus() != nil {
			t.Error("settling a terminal auction should emit nothing")
		}
	})

	t.Run("not yet ended", func(t *testing.T) {
		svc, _, store, _ := newAuctionHarness()
		auction := makeAuction(uuid.New())
		store.put(auction)
		if err := svc.FinalizeAuction(ctx, auction.ID); !errors.Is(err, domain.ErrAuctionNotEnded) {
			t.Errorf("err = %v, want ErrAuctionNotEnded", err)
		}
	})
}

func TestSettleDue(t *testing.T) {
	svc, _, store, _ := newAuctionHarness()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Second)

	for i := 0; i < 5; i++ {
		store.put(makeAuction(uuid.New(), withEndAt(past)))
	}
	stillRunning := makeAuction(uuid.New())
	store.put(stillRunning)

	n, err := svc.SettleDue(ctx)
	if err != nil {
		t.Fatalf("SettleDue: %v", err)
	}
	if n != 5 {
		t.Errorf("settled = %d, want 5", n)
	}
	for id, a := range store.auctions {
		if id == stillRunning.ID {
			if a.Status != domain.StatusActive {
				t.Errorf("running auction was touched: %s", a.Status)
			}
			continue
		}
		if a.Status != domain.StatusExpired {
			t.Errorf("auction %s status = %s, want expired", id, a.Status)
		}
	}

	// A second sweep finds nothing.
	if n, err = svc.SettleDue(ctx); err != nil || n != 0 {
		t.Errorf("second sweep = (%d, %v), want (0, nil)", n, err)
	}
}

func TestTimerSync(t *testing.T) {
	svc, _, store, _ := newAuctionHarness()
	auction := makeAuction(uuid.New(), withEndAt(time.Now().UTC().Add(90*time.Second)))
	store.put(auction)

	ev, err := svc.TimerSync(context.Background(), auction.ID)
	if err != nil {
		t.Fatalf("TimerSync: %v", err)
	}
	if ev.AuctionID != auction.ID {
		t.Errorf("auction id = %s, want %s", ev.AuctionID, auction.ID)
	}
	if ev.TimeRemaining < 85 || ev.TimeRemaining > 90 {
		t.Errorf("time remaining = %d, want ~90s", ev.TimeRemaining)
	}
	if !ev.EndAt.Equal(auction.EndAt) {
		t.Errorf("end at = %s, want %s", ev.EndAt, auction.EndAt)
	}

	if _, err := svc.TimerSync(context.Background(), uuid.New()); !errors.Is(err, domain.ErrAuctionNotFound) {
		t.Errorf("unknown auction err = %v, want ErrAuctionNotFound", err)
	}
}

func TestListActiveOrdering(t *testing.T) {
	svc, _, store, _ := newAuctionHarness()
	now := time.Now().UTC()
	late := makeAuction(uuid.New(), withEndAt(now.Add(2*time.Hour)))
	soon := makeAuction(uuid.New(), withEndAt(now.Add(10*time.Minute)))
	ended := makeAuction(uuid.New(), withEndAt(now.Add(-time.Minute)))
	pending := makeAuction(uuid.New(), withStatus(domain.StatusPending))
	for _, a := range []*domain.Auction{late, soon, ended, pending} {
		store.put(a)
	}

	got, total, err := svc.ListActive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2 (ended and pending excluded)", total)
	}
	if got[0].ID != soon.ID || got[1].ID != late.ID {
		t.Error("listing is not soonest-ending first")
	}
}
