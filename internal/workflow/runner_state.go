package workflow

import (
	"context"
	"log/slog"

	"analemma/internal/history"
	"analemma/internal/ledger"
	"analemma/internal/logging"
	"analemma/internal/notifications"
	"analemma/internal/storage"
)

// State returns the current workflow position.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastOutcome returns the most recent completed run, if any.
func (r *Runner) LastOutcome() *Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	copy := *r.last
	return &copy
}

// Ledger returns the ledger the runner records into.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.ledger
}

// Storage returns the archive the runner saves into.
func (r *Runner) Storage() *storage.Storage {
	return r.storage
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Runner) setLast(outcome Outcome) {
	r.mu.Lock()
	r.last = &outcome
	r.mu.Unlock()
}

func (r *Runner) beginHistory(ctx context.Context, logger *slog.Logger, outcome Outcome) int64 {
	if r.history == nil {
		return 0
	}
	id, err := r.history.Begin(ctx, outcome.RunID, outcome.Trigger, outcome.StartedAt)
	if err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will be missing from capture history"),
		)
		return 0
	}
	return id
}

func (r *Runner) finishHistory(ctx context.Context, logger *slog.Logger, id int64, outcome Outcome) {
	if r.history == nil || id == 0 {
		return
	}
	result := history.OutcomeSuccess
	if !outcome.OK() {
		result = history.OutcomeFailed
	}
	err := r.history.Finish(ctx, id, history.Completion{
		FinishedAt: outcome.StartedAt.Add(outcome.Duration),
		Outcome:    result,
		Category:   outcome.Category,
		Path:       outcome.Path,
		Error:      outcome.Error,
		Attempts:   outcome.Attempts,
	})
	if err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "capture history shows this run as running"),
		)
	}
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "push notification not delivered"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
