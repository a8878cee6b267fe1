package ccd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// timestampToken in a sequence prefix is replaced by the capture time.
	timestampToken = "ISO8601"
	// filenameTimestamp is ISO 8601 with dashes instead of colons, which
	// some file systems reject.
	filenameTimestamp = "2006-01-02T15-04-05"
	captureFileMode   = 0o644
)

// composeFilename builds "<prefix>[_<timestamp>]_<NNN><ext>". The timestamp
// replaces ISO8601 when the prefix contains "_ISO8601".
func composeFilename(prefix string, seq int, ext string, ts time.Time) string {
	if strings.Contains(prefix, "_"+timestampToken) {
		prefix = strings.ReplaceAll(prefix, timestampToken, ts.Format(filenameTimestamp))
		return fmt.Sprintf("%s_%03d%s", prefix, seq, ext)
	}
	if prefix == "" {
		return fmt.Sprintf("%03d%s", seq, ext)
	}
	return fmt.Sprintf("%s_%03d%s", prefix, seq, ext)
}

// generateFilename returns the path of the next capture file and checks
// that it can be created.
func (d *Device) generateFilename(ext string, batch bool) (string, error) {
	dir := d.opts.TempDirectory
	if batch {
		if cd := d.CaptureDirectory(); cd != "" {
			dir = cd
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrWriteFailed, dir, err)
	}

	path := filepath.Join(dir, composeFilename(d.seqPrefix, d.nextSeqID, ext, d.now()))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, captureFileMode)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return path, nil
}

// writeCaptureFile writes data and sets the mode to 0644 regardless of
// umask.
func writeCaptureFile(filename string, data []byte) error {
	if err := os.WriteFile(filename, data, captureFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := os.Chmod(filename, captureFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
