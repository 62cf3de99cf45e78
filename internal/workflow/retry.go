package workflow

import (
	"context"
	"time"

	"analemma/internal/services"
)

// RetryPolicy describes capture retries: MaxAttempts total tries with a delay
// that starts at InitialDelay and grows by Multiplier after every failure.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy allows three attempts with 1s then 2s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}
}

// Start returns the state for one run.
func (p RetryPolicy) Start() *RetryState {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return &RetryState{policy: p, delay: p.InitialDelay}
}

// RetryState tracks attempts within one run. It is not safe for concurrent use.
type RetryState struct {
	policy   RetryPolicy
	attempts int
	delay    time.Duration
}

// Attempts returns how many failures have been recorded.
func (s *RetryState) Attempts() int {
	return s.attempts
}

// Next records a failed attempt and returns the delay before the next one.
// ok is false when err is not retryable or the attempt budget is spent.
func (s *RetryState) Next(err error) (delay time.Duration, ok bool) {
	s.attempts++
	if !services.Retryable(err) || s.attempts >= s.policy.MaxAttempts {
		return 0, false
	}
	delay = s.delay
	s.delay = time.Duration(float64(s.delay) * s.policy.Multiplier)
	return delay, true
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
