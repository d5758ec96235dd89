package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/compliance-rag/internal/rag"
)

type call struct {
	now    time.Time
	window time.Duration
}

type fakeStore struct {
	mu    sync.Mutex
	calls []call
	err   error
	swept chan struct{}
}

func (f *fakeStore) Sweep(_ context.Context, now time.Time, window time.Duration) (*rag.SweepResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{now, window})
	f.mu.Unlock()
	if f.swept != nil {
		select {
		case f.swept <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &rag.SweepResult{Removed: []string{"a"}}, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePruner struct {
	before time.Time
	calls  int
}

func (p *fakePruner) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	p.calls++
	return 3, nil
}

func TestRunOnce_PassesClockAndWindow(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	pruner := &fakePruner{}
	s := New(store, pruner, Config{Window: 24 * time.Hour, AuditMaxAge: 7 * 24 * time.Hour}).
		WithClock(func() time.Time { return now })

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(res.Removed) != 1 {
		t.Errorf("Removed = %v", res.Removed)
	}
	if store.count() != 1 || store.calls[0].now != now || store.calls[0].window != 24*time.Hour {
		t.Errorf("calls = %+v", store.calls)
	}
	if pruner.calls != 1 || !pruner.before.Equal(now.Add(-7*24*time.Hour)) {
		t.Errorf("pruner before = %v, calls = %d", pruner.before, pruner.calls)
	}
}

func TestRunOnce_NoPruneWithoutMaxAge(t *testing.T) {
	pruner := &fakePruner{}
	s := New(&fakeStore{}, pruner, Config{Window: time.Hour})
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if pruner.calls != 0 {
		t.Errorf("pruner called %d times", pruner.calls)
	}
}

func TestRunOnce_Error(t *testing.T) {
	pruner := &fakePruner{}
	s := New(&fakeStore{err: errors.New("disk full")}, pruner, Config{Window: time.Hour, AuditMaxAge: time.Hour})
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if pruner.calls != 0 {
		t.Error("pruner should not run after a failed sweep")
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{Window: time.Hour, Interval: time.Minute}, true},
		{Config{Window: 0, Interval: time.Minute}, false},
		{Config{Window: time.Hour, Interval: 0}, false},
	}
	for _, tt := range tests {
		if got := New(&fakeStore{}, nil, tt.cfg).Enabled(); got != tt.want {
			t.Errorf("Enabled(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestStart_SweepsImmediatelyAndOnTicks(t *testing.T) {
	store := &fakeStore{swept: make(chan struct{}, 1)}
	s := New(store, nil, Config{Window: time.Hour, Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	s.Start(context.Background()) // second start is a no-op
	for i := 0; i < 3; i++ {
		select {
		case <-store.swept:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not happen", i+1)
		}
	}
	s.Stop()
	n := store.count()
	time.Sleep(30 * time.Millisecond)
	if store.count() != n {
		t.Error("sweeps continued after Stop")
	}
	s.Stop()
}

func TestStart_DisabledDoesNothing(t *testing.T) {
	store := &fakeStore{}
	s := New(store, nil, Config{Window: time.Hour})
	s.Start(context.Background())
	s.Stop()
	if store.count() != 0 {
		t.Errorf("got %d sweeps, want 0", store.count())
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	store := &fakeStore{swept: make(chan struct{}, 1)}
	s := New(store, nil, Config{Window: time.Hour, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-store.swept
	cancel()
	s.Stop()
}
