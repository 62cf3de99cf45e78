// Package scheduler fires the capture callback once a day at a fixed local
// time in an IANA timezone.
//
// Schedule strings are validated when the scheduler is constructed so a
// malformed time or unknown zone fails daemon startup instead of the first
// tick. Ticks run on robfig/cron; a tick that arrives while the previous
// callback is still running is skipped.
package scheduler
