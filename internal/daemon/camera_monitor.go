package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pilebones/go-udev/netlink"

	"analemma/internal/logging"
)

// cameraMonitor listens for udev netlink events and tracks whether a USB
// device from the configured camera vendor is attached.
type cameraMonitor struct {
	logger   *slog.Logger
	vendorID string
	present  atomic.Bool
	onChange func(present bool)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newCameraMonitor returns nil when no vendor id is configured.
func newCameraMonitor(vendorID string, initial bool, logger *slog.Logger) *cameraMonitor {
	vendorID = strings.ToLower(strings.TrimSpace(vendorID))
	if vendorID == "" {
		return nil
	}
	m := &cameraMonitor{
		logger:   logging.NewComponentLogger(logger, "camera-monitor"),
		vendorID: vendorID,
	}
	m.present.Store(initial)
	return m
}

// Start begins listening for udev netlink events.
func (m *cameraMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera presence will not be tracked", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "camera hotplug events unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("camera monitor started",
		logging.String(logging.FieldEventType, "camera_monitor_started"),
		logging.String("vendor_id", m.vendorID),
		logging.Bool("present", m.present.Load()),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *cameraMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("camera monitor stopped",
		logging.String(logging.FieldEventType, "camera_monitor_stopped"),
	)
}

// Running reports whether the monitor is listening.
func (m *cameraMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Present reports the last known camera presence.
func (m *cameraMonitor) Present() bool {
	if m == nil {
		return false
	}
	return m.present.Load()
}

func (m *cameraMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera presence may be stale"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=usb, DEVTYPE=usb_device, ID_VENDOR_ID=<vendor>
// with ACTION=add|remove.
func (m *cameraMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":    "usb",
			"DEVTYPE":      "usb_device",
			"ID_VENDOR_ID": "^" + m.vendorID + "$",
		},
	})
	return rules
}

func (m *cameraMonitor) handleEvent(uevent netlink.UEvent) {
	if !strings.EqualFold(uevent.Env["ID_VENDOR_ID"], m.vendorID) {
		return
	}
	var present bool
	switch uevent.Action {
	case netlink.ADD:
		present = true
	case netlink.REMOVE:
		present = false
	default:
		return
	}
	previous := m.present.Swap(present)

	attrs := []logging.Attr{
		logging.String("vendor_id", m.vendorID),
		logging.String("model", uevent.Env["ID_MODEL"]),
		logging.String("devpath", uevent.Env["DEVPATH"]),
	}
	if present {
		m.logger.Info("camera attached", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "camera_attached"))...)...)
	} else {
		logging.WarnWithContext(m.logger, "camera detached", "camera_detached", append(attrs,
			logging.String(logging.FieldImpact, "scheduled captures will fail until the camera is reconnected"),
			logging.String(logging.FieldErrorHint, "check the USB cable and power"),
		)...)
	}
	if previous != present && m.onChange != nil {
		m.onChange(present)
	}
}
