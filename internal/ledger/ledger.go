// Package ledger keeps the durable run statistics: the count of consecutive
// successful captures and a pointer to the last one.
//
// The ledger is advisory. A missing, unreadable, or malformed file loads as
// zero state, and write failures are logged rather than returned; the image
// archive itself remains the source of truth.
package ledger

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"analemma/internal/fileutil"
	"analemma/internal/logging"
	"analemma/internal/metadata"
)

// Statistics is the persisted document.
type Statistics struct {
	ConsecutiveSuccesses int     `json:"consecutive_successes"`
	LastCaptureTime      *string `json:"last_capture_time"`
	LastCapturePath      *string `json:"last_capture_path"`
}

// Ledger is constructed once per process and shared by reference.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	stats Statistics
}

// Open loads the ledger at path.
func Open(path string, logger *slog.Logger) *Ledger {
	l := &Ledger{path: path, logger: logging.NewComponentLogger(logger, "ledger")}
	l.stats = l.load()
	return l
}

func (l *Ledger) load() Statistics {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.WarnWithContext(l.logger, "ledger unreadable; starting from zero", "ledger_load_failed",
				logging.String("path", l.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "consecutive success count reset"),
			)
		}
		return Statistics{}
	}
	var stats Statistics
	if err := json.Unmarshal(data, &stats); err != nil || stats.ConsecutiveSuccesses < 0 {
		logging.WarnWithContext(l.logger, "ledger malformed; starting from zero", "ledger_load_failed",
			logging.String("path", l.path),
			logging.String(logging.FieldImpact, "consecutive success count reset"),
		)
		return Statistics{}
	}
	return stats
}

// Reload replaces the in-memory statistics with the file contents so that
// writes made by another process since Open are not overwritten. Callers
// reload while holding the capture gate.
func (l *Ledger) Reload() {
	stats := l.load()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = stats
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Snapshot returns a copy of the current statistics.
func (l *Ledger) Snapshot() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyStats(l.stats)
}

// RecordSuccess increments the success streak and records the capture.
func (l *Ledger) RecordSuccess(capturedAt time.Time, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := metadata.FormatTime(capturedAt)
	l.stats.ConsecutiveSuccesses++
	l.stats.LastCaptureTime = &ts
	l.stats.LastCapturePath = &path
}

// RecordFailure resets the success streak. The last-capture pointers are kept.
func (l *Ledger) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.ConsecutiveSuccesses = 0
}

// Save writes the full state. Failures are logged, not returned.
func (l *Ledger) Save() {
	snapshot := l.Snapshot()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err == nil {
		err = fileutil.WriteFileAtomic(l.path, append(data, '\n'), 0o644)
	}
	if err != nil {
		logging.WarnWithContext(l.logger, "ledger save failed", "ledger_save_failed",
			logging.String("path", l.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on paths.state_dir"),
			logging.String(logging.FieldImpact, "run statistics may be stale after restart"),
		)
		return
	}
	l.logger.Debug("ledger saved",
		logging.String("path", l.path),
		logging.Int("consecutive_successes", snapshot.ConsecutiveSuccesses),
	)
}

func copyStats(s Statistics) Statistics {
	out := Statistics{ConsecutiveSuccesses: s.ConsecutiveSuccesses}
	if s.LastCaptureTime != nil {
		v := *s.LastCaptureTime
		out.LastCaptureTime = &v
	}
	if s.LastCapturePath != nil {
		v := *s.LastCapturePath
		out.LastCapturePath = &v
	}
	return out
}
