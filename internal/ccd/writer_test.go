package ccd

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// slowWrite blocks every write until release is closed.
type slowWrite struct {
	mu      sync.Mutex
	release chan struct{}
	started chan string
	written map[string][]byte
}

func newSlowWrite() *slowWrite {
	return &slowWrite{
		release: make(chan struct{}),
		started: make(chan string, 4),
		written: make(map[string][]byte),
	}
}

func (s *slowWrite) write(filename string, data []byte) error {
	s.started <- filename
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written[filename] = append([]byte(nil), data...)
	return nil
}

func TestFileWriterSingleSlot(t *testing.T) {
	slow := newSlowWrite()
	var (
		mu   sync.Mutex
		done []string
	)
	w := newFileWriter(slow.write, func(job writeJob, err error) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, job.filename)
	})
	defer w.Close()

	payload := []byte("first frame")
	if err := w.Submit(writeJob{filename: "a.fits"}, payload); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-slow.started

	// The caller may reuse its buffer as soon as Submit returns.
	copy(payload, "XXXXXXXXXXX")

	second := make(chan error, 1)
	go func() {
		second <- w.Submit(writeJob{filename: "b.fits"}, []byte("second"))
	}()

	select {
	case <-second:
		t.Fatal("second Submit() returned while the first write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(slow.release)
	if err := <-second; err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	w.Wait()

	slow.mu.Lock()
	defer slow.mu.Unlock()
	if got := string(slow.written["a.fits"]); got != "first frame" {
		t.Errorf("a.fits = %q, want %q", got, "first frame")
	}
	if got := string(slow.written["b.fits"]); got != "second" {
		t.Errorf("b.fits = %q, want %q", got, "second")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(done) != 2 || done[0] != "a.fits" || done[1] != "b.fits" {
		t.Errorf("done = %v, want [a.fits b.fits]", done)
	}
}

func TestFileWriterReusesBuffer(t *testing.T) {
	w := newFileWriter(func(string, []byte) error { return nil }, nil)
	defer w.Close()

	if err := w.Submit(writeJob{filename: "a"}, make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	first := &w.buf[0]

	if err := w.Submit(writeJob{filename: "b"}, make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	if &w.buf[0] != first {
		t.Error("buffer reallocated for an equal size payload")
	}

	if err := w.Submit(writeJob{filename: "c"}, make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	if len(w.buf) != 32 {
		t.Errorf("len(buf) = %d, want 32", len(w.buf))
	}
}

func TestFileWriterReportsErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	result := make(chan error, 1)
	w := newFileWriter(
		func(string, []byte) error { return errDisk },
		func(_ writeJob, err error) { result <- err },
	)
	defer w.Close()

	if err := w.Submit(writeJob{filename: "a.fits"}, []byte("x")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := <-result; !errors.Is(err, errDisk) {
		t.Errorf("done error = %v, want %v", err, errDisk)
	}
}

func TestFileWriterClosed(t *testing.T) {
	w := newFileWriter(func(string, []byte) error { return nil }, nil)
	w.Close()
	w.Close()

	if err := w.Submit(writeJob{filename: "a"}, []byte("x")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Submit() after Close error = %v, want %v", err, ErrWriterClosed)
	}
	w.Wait()
}
