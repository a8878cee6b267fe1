// Package imaging decodes camera payloads into displayable image data.
//
// FITS payloads are read with github.com/astrogo/fitsio; raster formats go
// through image.Decode with the standard and golang.org/x/image decoders
// registered. Camera raw files are not demosaiced: they decode to metadata
// only, with a preview when the container carries a readable TIFF image.
package imaging
