// Package fits edits and writes FITS files.
//
// UpdateKey rewrites one keyword card of the primary header in place, which
// is how the FILTER keyword is stamped onto captures after they were
// written. Encode converts a decoded raster image into a FITS file.
//
// # References
//
//   - FITS Standard 4.0, section 3 (file organisation) and section 4
//     (header cards): https://fits.gsfc.nasa.gov/fits_standard.html
package fits
