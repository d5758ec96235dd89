// Package retention removes documents once they outlive the configured
// retention window.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/rag"
)

// Store is the part of rag.Service the sweeper drives. Sweep takes the
// same writer lock as interactive mutations.
type Store interface {
	Sweep(ctx context.Context, now time.Time, window time.Duration) (*rag.SweepResult, error)
}

// Pruner trims old audit entries. audit.Store implements it.
type Pruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the sweep loop.
type Config struct {
	// Window is how long a document is kept after upload.
	Window time.Duration
	// Interval between sweeps. Zero disables the loop.
	Interval time.Duration
	// AuditMaxAge, when positive, also deletes older audit entries.
	AuditMaxAge time.Duration
}

// Sweeper runs retention sweeps on a ticker.
type Sweeper struct {
	store  Store
	pruner Pruner
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a Sweeper. pruner may be nil.
func New(store Store, pruner Pruner, cfg Config) *Sweeper {
	return &Sweeper{store: store, pruner: pruner, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Enabled reports whether Start would run a loop.
func (s *Sweeper) Enabled() bool {
	return s.cfg.Interval > 0 && s.cfg.Window > 0
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*rag.SweepResult, error) {
	now := s.now()
	res, err := s.store.Sweep(ctx, now, s.cfg.Window)
	if err != nil {
		return nil, err
	}
	if s.pruner != nil && s.cfg.AuditMaxAge > 0 {
		n, err := s.pruner.DeleteBefore(ctx, now.Add(-s.cfg.AuditMaxAge))
		if err != nil {
			slog.Warn("pruning audit log", "error", err)
		} else if n > 0 {
			slog.Debug("pruned audit entries", "count", n)
		}
	}
	return res, nil
}

// Start runs the sweep loop in the background: once immediately, then on
// every tick, until ctx is done or Stop is called. It does nothing when
// the sweeper is not enabled or already running.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx, stopCh)
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Sweeper) run(ctx context.Context, stopCh <-chan struct{}) {
	slog.Info("retention sweeper started", "window", s.cfg.Window, "interval", s.cfg.Interval)
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("retention sweep failed", "error", err)
		}
		return
	}
	if len(res.Removed) > 0 {
		slog.Info("retention sweep", "removed", len(res.Removed))
	}
}
