// Package workflow runs the daily capture: connect, capture with retry,
// persist, record statistics, and post-process.
//
// Runner.Run is the single entry point used by the scheduler, the IPC server,
// and the CLI. A Gate makes runs mutually exclusive within a process and
// across processes, so a manual trigger that overlaps a scheduled tick is
// skipped instead of racing for the camera and the ledger.
//
// Connection, capture, and storage failures end a run early, reset the
// ledger's success streak, and are returned to the caller with their
// category. Post-processing problems never change a run's outcome; the saved
// image is the success criterion.
package workflow
