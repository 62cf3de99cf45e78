package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevel(t *testing.T) {
	var console, file bytes.Buffer
	consoleHandler := slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo})
	fileHandler := slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(consoleHandler, fileHandler))
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled through the file handler")
	}

	logger.Debug("frame decoded")
	logger.Info("capture complete")

	if strings.Contains(console.String(), "frame decoded") {
		t.Fatalf("console should not receive debug output: %q", console.String())
	}
	if !strings.Contains(console.String(), "capture complete") {
		t.Fatalf("console missing info output: %q", console.String())
	}
	if !strings.Contains(file.String(), "frame decoded") || !strings.Contains(file.String(), "capture complete") {
		t.Fatalf("file missing output: %q", file.String())
	}
}

func TestTeeLoggerPropagatesAttrs(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewJSONHandler(&base, nil)), slog.NewJSONHandler(&extra, nil))
	logger.With(String(FieldComponent, "daemon")).WithGroup("run").Info("started", String("id", "abc"))

	for name, buf := range map[string]*bytes.Buffer{"base": &base, "extra": &extra} {
		out := buf.String()
		if !strings.Contains(out, `"component":"daemon"`) || !strings.Contains(out, `"run":{"id":"abc"}`) {
			t.Fatalf("%s handler missing attrs: %q", name, out)
		}
	}
}
