package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired sessions are collected.
const DefaultSweepInterval = 30 * time.Second

// ResolveFunc receives each batch of drained sessions. It runs to
// completion before the next sweep starts.
type ResolveFunc func(ctx context.Context, expired []Session)

// Sweeper periodically drains expired sessions and hands them to a resolver.
type Sweeper struct {
	store    Store
	resolve  ResolveFunc
	interval time.Duration
	logger   *slog.Logger

	// mu keeps a manual SweepOnce from overlapping a scheduled one.
	mu sync.Mutex
}

// NewSweeper creates a sweeper. A non-positive interval selects
// DefaultSweepInterval; a nil logger discards output.
func NewSweeper(store Store, resolve ResolveFunc, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		store:    store,
		resolve:  resolve,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains and resolves expired sessions, returning how many.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.store.DrainExpired()
	if len(expired) == 0 {
		return 0
	}
	s.logger.Info("expired sessions drained", "count", len(expired))
	if s.resolve != nil {
		s.resolve(ctx, expired)
	}
	return len(expired)
}
