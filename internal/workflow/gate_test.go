package workflow_test

import (
	"errors"
	"path/filepath"
	"testing"

	"analemma/internal/workflow"
)

func TestGateIsSinglePermit(t *testing.T) {
	gate := workflow.NewGate(filepath.Join(t.TempDir(), "capture.lock"))
	release, err := gate.TryAcquire()
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := gate.TryAcquire(); !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("second acquire: expected ErrBusy, got %v", err)
	}
	release()
	release2, err := gate.TryAcquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestGateSharesFileLockAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "capture.lock")
	first := workflow.NewGate(path)
	second := workflow.NewGate(path)

	release, err := first.TryAcquire()
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := second.TryAcquire(); !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected file lock contention, got %v", err)
	}
	release()
	release2, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestGateWithoutLockFile(t *testing.T) {
	gate := workflow.NewGate("")
	release, err := gate.TryAcquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := gate.TryAcquire(); !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	release()
}
