package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"analemma/internal/config"
	"analemma/internal/metadata"
)

var userAgent = "Analemma-Go/" + metadata.SoftwareVersion

// Event names a notification type.
type Event string

const (
	EventCaptureSucceeded  Event = "capture_succeeded"
	EventCaptureFailed     Event = "capture_failed"
	EventLowStorage        Event = "low_storage"
	EventPostProcessFailed Event = "postprocess_failed"
	EventDaemonStarted     Event = "daemon_started"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventCaptureSucceeded:  cfg.Notifications.CaptureSuccess,
			EventCaptureFailed:     cfg.Notifications.CaptureFailure,
			EventLowStorage:        cfg.Notifications.LowStorage,
			EventPostProcessFailed: cfg.Notifications.CaptureFailure,
			EventDaemonStarted:     true,
			EventTest:              true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventCaptureSucceeded:
		message := fmt.Sprintf("☀️ Captured: %s", str(data, "path"))
		if streak := integer(data, "consecutive"); streak > 0 {
			message = fmt.Sprintf("%s\nStreak: %d days", message, streak)
		}
		return payload{
			title:   "Analemma - Captured",
			message: message,
			tags:    []string{"analemma", "capture", "completed"},
		}, true
	case EventCaptureFailed:
		category := str(data, "category")
		if category == "" {
			category = "unexpected"
		}
		message := fmt.Sprintf("❌ Capture failed (%s): %s", category, str(data, "error"))
		if attempts := integer(data, "attempts"); attempts > 1 {
			message = fmt.Sprintf("%s\nAttempts: %d", message, attempts)
		}
		return payload{
			title:    "Analemma - Capture Failed",
			message:  message,
			tags:     []string{"analemma", "capture", "failed"},
			priority: "high",
		}, true
	case EventLowStorage:
		return payload{
			title: "Analemma - Low Storage",
			message: fmt.Sprintf("💾 Low disk space at %s: %.0f MB free (threshold %d MB)",
				str(data, "path"), float(data, "free_mb"), integer(data, "threshold_mb")),
			tags:     []string{"analemma", "storage", "warning"},
			priority: "high",
		}, true
	case EventPostProcessFailed:
		return payload{
			title:   "Analemma - Post-processing Issue",
			message: fmt.Sprintf("⚠️ Post-processing failed (%s) for %s", str(data, "stages"), str(data, "path")),
			tags:    []string{"analemma", "postprocess", "warning"},
		}, true
	case EventDaemonStarted:
		return payload{
			title:    "Analemma - Daemon Started",
			message:  fmt.Sprintf("Next capture at %s", str(data, "next_capture")),
			tags:     []string{"analemma", "daemon", "started"},
			priority: "low",
		}, true
	case EventTest:
		return payload{
			title:    "Analemma - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"analemma", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func str(data Payload, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case []string:
		return strings.Join(v, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func integer(data Payload, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func float(data Payload, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
