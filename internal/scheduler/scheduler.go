package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"analemma/internal/logging"
	"analemma/internal/services"
)

// Callback is invoked once per scheduled instant or manual trigger.
type Callback func(ctx context.Context)

// Status summarizes the scheduler for status queries.
type Status struct {
	Running     bool       `json:"running"`
	CaptureTime string     `json:"capture_time"`
	Timezone    string     `json:"timezone"`
	NextCapture *time.Time `json:"next_capture,omitempty"`
}

// Scheduler runs a callback daily at a fixed time of day.
type Scheduler struct {
	at       TimeOfDay
	location *time.Location
	callback Callback
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	baseCtx context.Context
	running atomic.Bool
	busy    atomic.Bool
	manual  sync.WaitGroup
}

// New validates the schedule and returns a stopped scheduler.
func New(captureTime, timezone string, callback Callback, logger *slog.Logger) (*Scheduler, error) {
	at, err := ParseTimeOfDay(captureTime)
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	if callback == nil {
		return nil, services.Wrap(services.ErrScheduler, "", "", "callback is required", nil)
	}
	return &Scheduler{
		at:       at,
		location: loc,
		callback: callback,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
	}, nil
}

// Start registers the daily job. Callbacks receive a context derived from ctx
// that is not cancelled when ctx is, so a capture in progress finishes.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		logging.WarnWithContext(s.logger, "scheduler already running", "scheduler_already_running",
			logging.String(logging.FieldImpact, "duplicate start ignored"),
		)
		return nil
	}

	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{logger: s.logger}),
	)
	id, err := c.AddFunc(s.at.cronSpec(), func() { s.invoke("schedule") })
	if err != nil {
		s.mu.Unlock()
		return services.Wrap(services.ErrScheduler, "", "register job", "", err)
	}
	s.baseCtx = context.WithoutCancel(ctx)
	s.cron = c
	s.entryID = id
	c.Start()
	s.running.Store(true)
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		logging.String("capture_time", s.at.String()),
		logging.String("timezone", s.location.String()),
		logging.String("next_capture", s.NextRun().Format("2006-01-02 15:04:05 MST")),
	)
	return nil
}

// Stop halts future ticks and waits for a running callback, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running.Store(false)
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.manual.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the daily job is registered.
func (s *Scheduler) Running() bool {
	return s != nil && s.running.Load()
}

// NextRun returns the next scheduled instant in the configured zone, or the
// zero time when the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	if s == nil || !s.running.Load() {
		return time.Time{}
	}
	s.mu.Lock()
	c := s.cron
	id := s.entryID
	s.mu.Unlock()
	if c == nil {
		return time.Time{}
	}
	next := c.Entry(id).Next
	if next.IsZero() {
		next = s.NextAfter(time.Now())
	}
	return next.In(s.location)
}

// NextAfter computes the next occurrence after now without consulting the cron
// runner, which fills Entry.Next asynchronously after Start. It also works on
// a stopped scheduler.
func (s *Scheduler) NextAfter(now time.Time) time.Time {
	local := now.In(s.location)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), s.at.Hour, s.at.Minute, 0, 0, s.location)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// TriggerNow runs the callback immediately on its own goroutine. It reports
// false and does nothing unless the scheduler is running, so Stop never races
// a late trigger.
func (s *Scheduler) TriggerNow() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		s.logger.Debug("manual trigger ignored; scheduler not running")
		return false
	}
	s.manual.Add(1)
	s.mu.Unlock()

	s.logger.Info("manual capture triggered")
	go func() {
		defer s.manual.Done()
		s.invoke("manual")
	}()
	return true
}

// Status reports the schedule and the next run.
func (s *Scheduler) Status() Status {
	status := Status{
		Running:     s.Running(),
		CaptureTime: s.at.String(),
		Timezone:    s.location.String(),
	}
	if next := s.NextRun(); !next.IsZero() {
		status.NextCapture = &next
	}
	return status
}

func (s *Scheduler) invoke(trigger string) {
	if !s.busy.CompareAndSwap(false, true) {
		logging.WarnWithContext(s.logger, "capture still running; tick skipped", "schedule_tick_skipped",
			logging.String(logging.FieldTrigger, trigger),
			logging.String(logging.FieldImpact, "no capture for this trigger"),
		)
		return
	}
	defer s.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(s.logger, "capture callback panicked", "schedule_callback_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldTrigger, trigger),
			)
		}
	}()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithTrigger(ctx, trigger)
	if trigger == "schedule" {
		s.logger.Info("scheduled capture triggered")
	}
	s.callback(ctx)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
