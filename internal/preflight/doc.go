// Package preflight provides readiness checks for the filesystem paths,
// external tools, and camera hardware analemma depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failures so a broken
//     install is visible before the first scheduled capture.
//   - The CLI "analemma status" command uses the individual checks to
//     display system health.
//
// Checks never block a capture; they only report.
package preflight
