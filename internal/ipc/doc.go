// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The socket is local-only. Three methods are served under the "Analemma"
// name: Status, Trigger, and Stop. Trigger blocks until the capture run
// finishes and reports a busy gate as a response field rather than an RPC
// error so CLI callers can distinguish it from a transport failure.
package ipc
