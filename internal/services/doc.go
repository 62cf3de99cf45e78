// Package services defines the error taxonomy and context helpers shared by the
// capture workflow, persistence layer, and post-processing pipeline.
//
// Failures are tagged with one of the sentinel markers (connection, capture,
// storage, postprocess, scheduler) through Wrap so callers can classify them
// with errors.Is without parsing messages. The context helpers stamp run
// identifiers and workflow states so log lines can be correlated per capture.
package services
