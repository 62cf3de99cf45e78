// Package postprocess keeps the derived artifacts of the image archive up to
// date after a capture: the TIFF viewer copy of each FITS file, the running
// lighten-blend composite, and an optional mirror on an rclone remote.
//
// Each stage is independent. Pipeline.Run executes conversion, composite, and
// sync in that order, catching errors and panics per stage so a failure never
// prevents the next stage from running and never touches the primary FITS file.
package postprocess
