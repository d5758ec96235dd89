// Package dirlock serializes access to a data directory across processes
// with an advisory lock on a file inside it.
package dirlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileName is the lock file created in the guarded directory.
const FileName = "crag.lock"

// ErrLocked is returned by TryShared and TryExclusive when another holder
// has a conflicting lock.
var ErrLocked = errors.New("data directory is locked")

// pollInterval is how often Exclusive retries a held lock.
const pollInterval = 50 * time.Millisecond

// Lock guards one directory. Every acquisition opens its own descriptor,
// so holders in the same process exclude each other like separate
// processes do.
type Lock struct {
	path string
}

// New returns the lock for dir. Nothing is created until it is acquired.
func New(dir string) *Lock {
	return &Lock{path: filepath.Join(dir, FileName)}
}

// Path returns the lock file.
func (l *Lock) Path() string { return l.path }

// Exclusive blocks until the exclusive lock is held or ctx is done. The
// returned func releases it.
func (l *Lock) Exclusive(ctx context.Context) (func(), error) {
	for {
		release, err := l.TryExclusive()
		if !errors.Is(err, ErrLocked) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s (held by pid %s): %w", l.path, l.holder(), ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// TryExclusive takes the exclusive lock without waiting.
func (l *Lock) TryExclusive() (func(), error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, true); err != nil {
		f.Close()
		return nil, err
	}
	// The pid is informational only.
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return releaser(f), nil
}

// TryShared takes a shared lock without waiting. Shared holders exclude
// exclusive ones but not each other.
func (l *Lock) TryShared() (func(), error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, false); err != nil {
		f.Close()
		return nil, err
	}
	return releaser(f), nil
}

func (l *Lock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

func (l *Lock) holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	if pid := strings.TrimSpace(string(data)); pid != "" {
		return pid
	}
	return "unknown"
}

func releaser(f *os.File) func() {
	return func() {
		unlockFile(f)
		f.Close()
	}
}
