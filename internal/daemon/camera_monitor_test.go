package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewCameraMonitor(t *testing.T) {
	if m := newCameraMonitor("  ", false, nil); m != nil {
		t.Fatal("expected nil monitor for empty vendor id")
	}
	m := newCameraMonitor("03C3", true, nil)
	if m == nil {
		t.Fatal("expected monitor")
	}
	if m.vendorID != "03c3" {
		t.Fatalf("expected lowercased vendor id, got %q", m.vendorID)
	}
	if !m.Present() {
		t.Fatal("expected initial presence to be kept")
	}
}

func TestCameraMonitorNilSafety(t *testing.T) {
	var m *cameraMonitor
	m.Stop()
	if m.Running() || m.Present() {
		t.Fatal("nil monitor must report not running and absent")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor should return nil, got: %v", err)
	}
}

func TestCameraMonitorDoubleStop(t *testing.T) {
	m := newCameraMonitor("03c3", false, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected monitor to be stopped")
	}
}

func TestCameraMatcher(t *testing.T) {
	m := newCameraMonitor("03c3", false, nil)
	matcher := m.buildMatcher()

	tests := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{
			name: "add matches",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "usb", "DEVTYPE": "usb_device", "ID_VENDOR_ID": "03c3",
			}},
			want: true,
		},
		{
			name: "remove matches",
			event: netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{
				"SUBSYSTEM": "usb", "DEVTYPE": "usb_device", "ID_VENDOR_ID": "03c3",
			}},
			want: true,
		},
		{
			name: "other vendor rejected",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "usb", "DEVTYPE": "usb_device", "ID_VENDOR_ID": "1d6b",
			}},
		},
		{
			name: "interface rejected",
			event: netlink.UEvent{Action: netlink.ADD, Env: map[string]string{
				"SUBSYSTEM": "usb", "DEVTYPE": "usb_interface", "ID_VENDOR_ID": "03c3",
			}},
		},
		{
			name: "change rejected",
			event: netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{
				"SUBSYSTEM": "usb", "DEVTYPE": "usb_device", "ID_VENDOR_ID": "03c3",
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matcher.Evaluate(tt.event); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCameraMonitorHandleEvent(t *testing.T) {
	m := newCameraMonitor("03c3", false, nil)
	var changes []bool
	m.onChange = func(present bool) { changes = append(changes, present) }

	event := func(action netlink.KObjAction, vendor string) netlink.UEvent {
		return netlink.UEvent{Action: action, Env: map[string]string{"ID_VENDOR_ID": vendor, "ID_MODEL": "ASI224MC"}}
	}

	m.handleEvent(event(netlink.ADD, "1d6b"))
	if m.Present() {
		t.Fatal("foreign vendor must not mark the camera present")
	}
	m.handleEvent(event(netlink.ADD, "03C3"))
	if !m.Present() {
		t.Fatal("expected camera present after add")
	}
	m.handleEvent(event(netlink.ADD, "03c3"))
	m.handleEvent(event(netlink.REMOVE, "03c3"))
	if m.Present() {
		t.Fatal("expected camera absent after remove")
	}
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Fatalf("expected attach then detach transitions, got %v", changes)
	}
}
