package workflow_test

import (
	"errors"
	"testing"
	"time"

	"analemma/internal/services"
	"analemma/internal/workflow"
)

func TestRetryPolicyDoublesDelay(t *testing.T) {
	state := workflow.DefaultRetryPolicy().Start()
	captureErr := services.Wrap(services.ErrCapture, "capturing", "capture", "", errors.New("timeout"))

	delay, ok := state.Next(captureErr)
	if !ok || delay != time.Second {
		t.Fatalf("first retry: got %s %v, want 1s true", delay, ok)
	}
	delay, ok = state.Next(captureErr)
	if !ok || delay != 2*time.Second {
		t.Fatalf("second retry: got %s %v, want 2s true", delay, ok)
	}
	if _, ok = state.Next(captureErr); ok {
		t.Fatal("third failure must exhaust the policy")
	}
	if state.Attempts() != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", state.Attempts())
	}
}

func TestRetryPolicyOnlyRetriesCaptureErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "connection", err: services.Wrap(services.ErrConnection, "connecting", "connect", "", nil)},
		{name: "storage", err: services.Wrap(services.ErrStorage, "persisting", "save", "", nil)},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := workflow.DefaultRetryPolicy().Start()
			if _, ok := state.Next(tt.err); ok {
				t.Fatalf("%v must not be retried", tt.err)
			}
		})
	}
}

func TestRetryPolicyCustomBudget(t *testing.T) {
	policy := workflow.RetryPolicy{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, Multiplier: 3}
	state := policy.Start()
	err := services.Wrap(services.ErrCapture, "", "capture", "", nil)
	want := []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 90 * time.Millisecond}
	for i, w := range want {
		delay, ok := state.Next(err)
		if !ok || delay != w {
			t.Fatalf("retry %d: got %s %v, want %s", i+1, delay, ok, w)
		}
	}
	if _, ok := state.Next(err); ok {
		t.Fatal("expected exhaustion after 4 attempts")
	}
}
