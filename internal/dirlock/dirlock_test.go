package dirlock

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestExclusiveExcludesOtherHolders(t *testing.T) {
	dir := t.TempDir()
	a, b := New(dir), New(dir)

	release, err := a.TryExclusive()
	if err != nil {
		t.Fatalf("TryExclusive: %v", err)
	}
	if _, err := b.TryExclusive(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second exclusive: got %v, want ErrLocked", err)
	}
	if _, err := b.TryShared(); !errors.Is(err, ErrLocked) {
		t.Fatalf("shared during exclusive: got %v, want ErrLocked", err)
	}

	data, err := os.ReadFile(a.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file holds %q, want our pid", got)
	}

	release()
	release2, err := b.TryExclusive()
	if err != nil {
		t.Fatalf("exclusive after release: %v", err)
	}
	release2()
}

func TestSharedHoldersCoexist(t *testing.T) {
	dir := t.TempDir()
	r1, err := New(dir).TryShared()
	if err != nil {
		t.Fatalf("first shared: %v", err)
	}
	r2, err := New(dir).TryShared()
	if err != nil {
		t.Fatalf("second shared: %v", err)
	}
	if _, err := New(dir).TryExclusive(); !errors.Is(err, ErrLocked) {
		t.Fatalf("exclusive during shared: got %v, want ErrLocked", err)
	}
	r1()
	r2()
}

func TestExclusiveWaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	release, err := New(dir).TryExclusive()
	if err != nil {
		t.Fatalf("TryExclusive: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	release2, err := New(dir).Exclusive(ctx)
	if err != nil {
		t.Fatalf("Exclusive: %v", err)
	}
	release2()
}

func TestExclusiveHonoursContext(t *testing.T) {
	dir := t.TempDir()
	release, err := New(dir).TryExclusive()
	if err != nil {
		t.Fatalf("TryExclusive: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if _, err := New(dir).Exclusive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}
