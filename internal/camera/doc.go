// Package camera defines the capture device contract used by the workflow and
// ships two drivers: a simulator that renders a synthetic sun disc and a
// command driver that shells out to a vendor capture tool.
//
// Connection failures are tagged services.ErrConnection and are never retried
// by callers. Capture failures are tagged services.ErrCapture and may be.
package camera
