// Package logging assembles structured slog loggers and formatting helpers used
// across Analemma components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so workflow code can tag log
// lines with the capture state, trigger, and run correlation ID. A no-op
// logger is provided for tests and for wiring code that has no logger yet.
package logging
