// Package scheduler manages the background goroutines that keep the auction
// lifecycle moving:
//  1. sweepLoop        – settles due auctions every second.
//  2. timerSyncLoop    – pushes authoritative countdowns to occupied rooms.
//  3. liveStatsLoop    – broadcasts platform-wide counters to all clients.
//  4. tokenCleanupLoop – purges long-expired refresh tokens hourly.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/service"
	"github.com/openlot/auction/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// WsHub interface — minimally required from the Hub
// ──────────────────────────────────────────────────────────────────────────────

// WsHub defines the broadcast operations the Scheduler needs from the
// WebSocket hub. Declared here so the scheduler package does not depend on the
// hub implementation.
type WsHub interface {
	Rooms() []uuid.UUID
	ConnectedCount() int
	BroadcastTimerSync(auctionID uuid.UUID, event ws.TimerSyncEvent)
	BroadcastLiveStats(event ws.LiveStatsEvent)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires the services to the background loops. Call Start(ctx) once
// from main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	auctionSvc *service.AuctionService
	authSvc    *service.AuthService
	hub        WsHub
	cfg        *config.Config
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	auctionSvc *service.AuctionService,
	authSvc *service.AuthService,
	hub WsHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		auctionSvc: auctionSvc,
		authSvc:    authSvc,
		hub:        hub,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start launches the background goroutines. It returns immediately; all loops
// run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	go s.timerSyncLoop(ctx)
	go s.liveStatsLoop(ctx)
	go s.tokenCleanupLoop(ctx)
	s.logger.Info("scheduler started",
		"sweep_interval", s.cfg.Scheduler.SweepInterval,
		"sweep_concurrency", s.cfg.Scheduler.SweepConcurrency)
}

// ──────────────────────────────────────────────────────────────────────────────
// sweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// sweepLoop settles due auctions on every tick. A sweep that finds nothing is
// silent; settlement errors are logged per-auction inside SettleDue.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.recoverAndLog("sweepLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweepLoop: shutting down")
			return
		case <-ticker.C:
			settled, err := s.auctionSvc.SettleDue(ctx)
			if err != nil {
				s.logger.Error("sweepLoop: SettleDue", "err", err)
				continue
			}
			if settled > 0 {
				s.logger.Info("sweepLoop: auctions settled", "count", settled)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// timerSyncLoop
// ──────────────────────────────────────────────────────────────────────────────

// timerSyncLoop periodically re-anchors client countdowns for every room that
// has at least one subscriber. Rooms whose auction has vanished are skipped.
func (s *Scheduler) timerSyncLoop(ctx context.Context) {
	defer s.recoverAndLog("timerSyncLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.TimerSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timerSyncLoop: shutting down")
			return
		case <-ticker.C:
			s.syncOccupiedRooms(ctx)
		}
	}
}

// syncOccupiedRooms is the inner body of timerSyncLoop, extracted so the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) syncOccupiedRooms(ctx context.Context) {
	for _, auctionID := range s.hub.Rooms() {
		event, err := s.auctionSvc.TimerSync(ctx, auctionID)
		if err != nil {
			// Room outlives the auction row (e.g. admin wipe); nothing to sync.
			continue
		}
		s.hub.BroadcastTimerSync(auctionID, *event)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// liveStatsLoop
// ──────────────────────────────────────────────────────────────────────────────

// liveStatsLoop broadcasts advisory platform counters to every connection.
func (s *Scheduler) liveStatsLoop(ctx context.Context) {
	defer s.recoverAndLog("liveStatsLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.LiveStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("liveStatsLoop: shutting down")
			return
		case <-ticker.C:
			active, err := s.auctionSvc.CountActiveCached(ctx)
			if err != nil {
				s.logger.Warn("liveStatsLoop: count active", "err", err)
				continue
			}
			s.hub.BroadcastLiveStats(ws.LiveStatsEvent{
				Type:           ws.MsgTypeLiveStats,
				ActiveAuctions: active,
				ConnectedUsers: s.hub.ConnectedCount(),
				Timestamp:      time.Now().UTC(),
			})
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// tokenCleanupLoop
// ──────────────────────────────────────────────────────────────────────────────

// tokenCleanupLoop deletes refresh-token rows whose TTL has passed. Runs once
// shortly after boot, then hourly.
func (s *Scheduler) tokenCleanupLoop(ctx context.Context) {
	defer s.recoverAndLog("tokenCleanupLoop")

	const interval = time.Hour

	timer := time.NewTimer(time.Minute)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tokenCleanupLoop: shutting down")
			return
		case <-timer.C:
			deleted, err := s.authSvc.CleanupExpiredTokens(ctx)
			if err != nil {
				s.logger.Error("tokenCleanupLoop: cleanup", "err", err)
			} else if deleted > 0 {
				s.logger.Info("tokenCleanupLoop: expired tokens removed", "count", deleted)
			}
			timer.Reset(interval)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
