package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"analemma/internal/config"
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

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	socketPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Camera.USBVendorID = ""
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		socketPath: cfg.SocketPath(),
		baseDir:    base,
	}
}

// startDaemon serves a live daemon on the env socket for the duration of the test.
func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()

	store := testsupport.MustOpenHistory(t, env.cfg)
	logger := logging.NewNop()
	runner, err := workflow.New(workflow.Options{
		Config:   env.cfg,
		Ledger:   ledger.Open(env.cfg.LedgerPath(), logger),
		History:  store,
		Notifier: quietNotifier{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: env.cfg, Runner: runner, History: store, Notifier: quietNotifier{}, Logger: logger})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, cancel, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		srv.Close()
		d.Stop(context.Background())
		cancel()
	})
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", env.socketPath, "--config", env.configPath, "--log-level", "error"}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
