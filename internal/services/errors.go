package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection marks a camera that could not be reached or opened.
	ErrConnection = errors.New("connection error")
	// ErrCapture marks a transient capture failure reported by the camera.
	ErrCapture = errors.New("capture error")
	// ErrStorage marks a persistence failure.
	ErrStorage = errors.New("storage error")
	// ErrPostProcess marks a failed post-processing stage.
	ErrPostProcess = errors.New("postprocess error")
	// ErrScheduler marks an invalid schedule definition.
	ErrScheduler = errors.New("scheduler error")

	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
)

// Category labels used in logs, history rows, and notifications.
const (
	CategoryConnection  = "connection"
	CategoryCapture     = "capture"
	CategoryStorage     = "storage"
	CategoryPostProcess = "postprocess"
	CategoryScheduler   = "scheduler"
	CategoryUnexpected  = "unexpected"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Category maps an error to the failure category the workflow reports.
// Errors without a known marker are unexpected.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnection):
		return CategoryConnection
	case errors.Is(err, ErrCapture):
		return CategoryCapture
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	case errors.Is(err, ErrPostProcess):
		return CategoryPostProcess
	case errors.Is(err, ErrScheduler):
		return CategoryScheduler
	default:
		return CategoryUnexpected
	}
}

// Retryable reports whether the capture workflow may retry after err.
// Only capture failures qualify; connection failures are never retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrCapture) && !errors.Is(err, ErrConnection)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
