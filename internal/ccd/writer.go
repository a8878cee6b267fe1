package ccd

import (
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-indi/internal/fits"
)

// writeJob is one capture file handed to the writer goroutine.
type writeJob struct {
	filename string
	data     []byte
	filter   string
	chip     ChipType
	format   string
}

// fileWriter writes FITS captures on its own goroutine through a single
// slot. Submit blocks while a write is in flight, then copies the payload
// into the shared buffer and hands it over, so at most one write is ever
// pending and writes complete in submission order.
//
// Submit and Close are called from the dispatch goroutine only.
type fileWriter struct {
	write func(filename string, data []byte) error
	done  func(job writeJob, err error)

	jobs chan writeJob
	// idle holds a token while no write is in flight.
	idle chan struct{}

	buf    []byte
	closed bool
	wg     sync.WaitGroup
}

func newFileWriter(write func(string, []byte) error, done func(writeJob, error)) *fileWriter {
	if write == nil {
		write = writeCaptureFile
	}
	w := &fileWriter{
		write: write,
		done:  done,
		jobs:  make(chan writeJob),
		idle:  make(chan struct{}, 1),
	}
	w.idle <- struct{}{}

	w.wg.Add(1)
	go w.run()
	return w
}

// Submit waits for the previous write, copies data into the shared buffer
// and starts writing it. The buffer is reallocated only when the payload
// size changes.
func (w *fileWriter) Submit(job writeJob, data []byte) error {
	if w.closed {
		return ErrWriterClosed
	}

	<-w.idle

	if len(w.buf) != len(data) {
		w.buf = make([]byte, len(data))
	}
	copy(w.buf, data)
	job.data = w.buf

	w.jobs <- job
	return nil
}

// Wait blocks until no write is in flight.
func (w *fileWriter) Wait() {
	if w.closed {
		return
	}
	<-w.idle
	w.idle <- struct{}{}
}

// Close waits for the pending write and stops the writer goroutine.
func (w *fileWriter) Close() {
	if w.closed {
		return
	}
	w.closed = true
	<-w.idle
	close(w.jobs)
	w.wg.Wait()
	w.buf = nil
}

func (w *fileWriter) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		err := w.write(job.filename, job.data)
		if err == nil && job.filter != "" {
			err = patchFilter(job.filename, job.filter)
		}
		if w.done != nil {
			w.done(job, err)
		}
		w.idle <- struct{}{}
	}
}

// patchFilter stamps the filter name into the FILTER keyword.
func patchFilter(filename, filter string) error {
	return fits.UpdateKey(filename, "FILTER", strings.ReplaceAll(filter, " ", "_"), "Filter name")
}

// fileWritten reports a finished write. It runs on the writer goroutine for
// FITS captures.
func (d *Device) fileWritten(job writeJob, err error) {
	if err != nil {
		d.logger.Error("capture write failed", "device", d.name, "file", job.filename, "error", err)
	} else {
		d.logger.Debug("capture written", "device", d.name, "file", job.filename, "bytes", len(job.data))
	}
	d.emit(Event{
		Kind:   EventFileWritten,
		Chip:   job.chip,
		Path:   job.filename,
		Format: job.format,
		Size:   len(job.data),
		Err:    err,
	})
}
