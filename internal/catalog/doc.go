// Package catalog records every capture file a camera writes.
//
// Each completed write becomes one row in the captures table: a uuid, the
// device and chip, the file path and format, its size, an optional BLAKE3
// content hash and the write error if there was one. The Recorder takes
// entries off the camera writer goroutines and persists them on its own
// goroutine so hashing a large FITS file never delays the next write.
package catalog
