// Package imaging holds the in-memory frame model and the image codecs the
// archive uses: FITS for archival frames, TIFF for lossless viewer copies and
// the composite, and PNG for quick-look output.
//
// Frames are 8-bit and interleaved (height, width, channels). FITS stores the
// same samples channel-first, so Planar and FromPlanar convert between the two
// layouts. No codec rescales pixel values.
package imaging
