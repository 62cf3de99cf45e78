package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Outcome is the final state of a capture run.
type Outcome string

const (
	OutcomeRunning     Outcome = "running"
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeInterrupted Outcome = "interrupted"
)

// Attempt is one capture workflow run.
type Attempt struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    Outcome    `json:"outcome"`
	Category   string     `json:"category,omitempty"`
	Path       string     `json:"path,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
}

// Duration returns how long the run took, or zero while it is still running.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Completion carries the fields written when a run finishes.
type Completion struct {
	FinishedAt time.Time
	Outcome    Outcome
	Category   string
	Path       string
	Error      string
	Attempts   int
}

const attemptColumns = `id, run_id, trigger, started_at, finished_at, outcome, category, image_path, error_message, attempts`

// Begin inserts a running row for runID.
func (s *Store) Begin(ctx context.Context, runID, trigger string, startedAt time.Time) (int64, error) {
	if runID == "" {
		return 0, errors.New("run id is required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO capture_attempts (run_id, trigger, started_at, outcome) VALUES (?, ?, ?, ?)`,
		runID, trigger, formatTime(startedAt), OutcomeRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("insert capture attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("capture attempt id: %w", err)
	}
	return id, nil
}

// Finish records how the run identified by id ended.
func (s *Store) Finish(ctx context.Context, id int64, c Completion) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_attempts
		 SET finished_at = ?, outcome = ?, category = ?, image_path = ?, error_message = ?, attempts = ?
		 WHERE id = ?`,
		formatTime(c.FinishedAt), c.Outcome, nullString(c.Category), nullString(c.Path), nullString(c.Error), c.Attempts, id,
	)
	if err != nil {
		return fmt.Errorf("update capture attempt %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("capture attempt %d not found", id)
	}
	return nil
}

// Get returns the attempt with the given id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id int64) (*Attempt, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+attemptColumns+` FROM capture_attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return attempt, err
}

// List returns up to limit attempts, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM capture_attempts ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list capture attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// Stats returns a count of attempts grouped by outcome.
func (s *Store) Stats(ctx context.Context) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT outcome, COUNT(1) FROM capture_attempts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Outcome]int)
	for rows.Next() {
		var outcome Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted closes out rows left running by a process that exited
// mid-capture and returns how many were updated.
func (s *Store) MarkInterrupted(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_attempts SET outcome = ?, finished_at = ?, error_message = ? WHERE outcome = ?`,
		OutcomeInterrupted, formatTime(at), "process exited before the run finished", OutcomeRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted attempts: %w", err)
	}
	return res.RowsAffected()
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		a           Attempt
		startedRaw  string
		finishedRaw sql.NullString
		outcome     string
		category    sql.NullString
		path        sql.NullString
		errMsg      sql.NullString
	)
	if err := scanner.Scan(&a.ID, &a.RunID, &a.Trigger, &startedRaw, &finishedRaw, &outcome, &category, &path, &errMsg, &a.Attempts); err != nil {
		return nil, err
	}
	started, err := parseTime(startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at for attempt %d: %w", a.ID, err)
	}
	a.StartedAt = started
	if finishedRaw.Valid && finishedRaw.String != "" {
		finished, err := parseTime(finishedRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at for attempt %d: %w", a.ID, err)
		}
		a.FinishedAt = &finished
	}
	a.Outcome = Outcome(outcome)
	a.Category = category.String
	a.Path = path.String
	a.Error = errMsg.String
	return &a, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
