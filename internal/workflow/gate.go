package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrBusy reports that another capture run holds the gate.
var ErrBusy = errors.New("capture already in progress")

// Gate is a single-permit guard. The mutex covers goroutines in this process
// and the file lock covers other processes such as a CLI capture running
// while the daemon fires.
type Gate struct {
	mu   sync.Mutex
	lock *flock.Flock
}

// NewGate builds a gate backed by lockPath. An empty path gives an
// in-process gate only.
func NewGate(lockPath string) *Gate {
	g := &Gate{}
	if lockPath != "" {
		g.lock = flock.New(lockPath)
	}
	return g
}

// TryAcquire takes the permit without blocking. The returned release must be
// called exactly once.
func (g *Gate) TryAcquire() (release func(), err error) {
	if !g.mu.TryLock() {
		return nil, ErrBusy
	}
	if g.lock == nil {
		return g.mu.Unlock, nil
	}
	if err := os.MkdirAll(filepath.Dir(g.lock.Path()), 0o755); err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := g.lock.TryLock()
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("acquire capture lock: %w", err)
	}
	if !ok {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	return func() {
		_ = g.lock.Unlock()
		g.mu.Unlock()
	}, nil
}
