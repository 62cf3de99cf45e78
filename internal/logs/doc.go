// Package logs reads the daemon's log files for the CLI.
//
// The daemon writes one log file per run and keeps a stable analemma.log
// pointer aimed at the newest one. Tail returns the last lines of that file
// with an offset, and Follow polls from an offset so `analemma logs --follow`
// can stream new lines until its context ends.
package logs
