// Package main hosts the analemma CLI entrypoint and command graph.
//
// The Cobra-based command tree runs captures (through the daemon when it is
// up, in-process otherwise), reports status, lists archived images, drives
// the post-processing tools by hand, and scaffolds configuration. Subcommands
// stay thin: the capture workflow, storage, and post-processing live in
// internal packages and are only surfaced here.
package main
