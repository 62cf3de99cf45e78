// Package history records every capture workflow run in a SQLite database so
// the CLI can show what happened on past days. Rows are written when a run
// starts and completed when it finishes; runs interrupted by a crash are
// marked on the next daemon start.
//
// History is an audit trail only. The workflow treats every write failure as
// best-effort and the run-statistics ledger stays the source of truth for
// the consecutive-success counter.
package history
