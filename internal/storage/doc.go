// Package storage is the image archive: deterministic path derivation,
// atomic FITS and PNG writers, capacity probing, and enumeration.
//
// Captured images are append-only. Nothing in this package removes an image
// once it has been written.
package storage
