package ipc_test

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"analemma/internal/daemon"
	"analemma/internal/ipc"
	"analemma/internal/ledger"
	"analemma/internal/logging"
	"analemma/internal/notifications"
	"analemma/internal/testsupport"
	"analemma/internal/workflow"
)

type quietNotifier struct{}

func (quietNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Camera.USBVendorID = ""
	store := testsupport.MustOpenHistory(t, cfg)
	logger := logging.NewNop()

	runner, err := workflow.New(workflow.Options{
		Config:   cfg,
		Ledger:   ledger.Open(cfg.LedgerPath(), logger),
		History:  store,
		Notifier: quietNotifier{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: cfg, Runner: runner, History: store, Notifier: quietNotifier{}, Logger: logger})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop(context.Background())
	})

	var stopped atomic.Bool
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, func() { stopped.Store(true) }, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	statusResp, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !statusResp.Status.Running {
		t.Fatal("expected daemon to be running")
	}
	if statusResp.Status.Scheduler.CaptureTime != cfg.Schedule.CaptureTime {
		t.Fatalf("expected capture time %q, got %q", cfg.Schedule.CaptureTime, statusResp.Status.Scheduler.CaptureTime)
	}

	triggerResp, err := client.Trigger()
	if err != nil {
		t.Fatalf("Trigger RPC failed: %v", err)
	}
	if triggerResp.Busy {
		t.Fatalf("unexpected busy response: %s", triggerResp.Message)
	}
	if triggerResp.Outcome.Path == "" {
		t.Fatalf("expected saved path, message=%s", triggerResp.Message)
	}
	if _, err := os.Stat(triggerResp.Outcome.Path); err != nil {
		t.Fatalf("expected image on disk: %v", err)
	}

	statusResp, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if statusResp.Status.Ledger.ConsecutiveSuccesses != 1 {
		t.Fatalf("expected streak 1, got %d", statusResp.Status.Ledger.ConsecutiveSuccesses)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped || !stopped.Load() {
		t.Fatal("expected shutdown callback to run")
	}
}

func TestTriggerReportsBusyGate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Camera.USBVendorID = ""
	runner, err := workflow.New(workflow.Options{
		Config:   cfg,
		Ledger:   ledger.Open(cfg.LedgerPath(), nil),
		Notifier: quietNotifier{},
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: cfg, Runner: runner, Notifier: quietNotifier{}})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	release, err := workflow.NewGate(cfg.CaptureLockPath()).TryAcquire()
	if err != nil {
		t.Fatalf("acquire gate: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, nil, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	defer srv.Close()

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Trigger()
	if err != nil {
		t.Fatalf("Trigger RPC failed: %v", err)
	}
	if !resp.Busy {
		t.Fatalf("expected busy response, got %+v", resp)
	}
	if resp.Outcome.Path != "" {
		t.Fatal("busy trigger must not save an image")
	}
}

func TestDialMissingSocket(t *testing.T) {
	if _, err := ipc.Dial(t.TempDir() + "/missing.sock"); err == nil {
		t.Fatal("expected dial error for missing socket")
	}
}
