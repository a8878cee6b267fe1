package catalog

import (
	"context"
	"sync"
	"time"
)

const (
	defaultQueueSize    = 64
	defaultStoreTimeout = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// HashFiles computes a BLAKE3 digest of each successfully written file.
	HashFiles bool

	// QueueSize bounds the pending entries. Defaults to 64.
	QueueSize int

	Logger Logger
}

// Recorder persists captures on a background goroutine.
//
//	rec := catalog.NewRecorder(repo, catalog.RecorderOptions{HashFiles: true})
//	rec.Start()
//	defer rec.Close()
//	rec.Record(catalog.Capture{Device: "CCD Simulator", Path: "/data/img_001.fits"})
type Recorder struct {
	repo   Repository
	opts   RecorderOptions
	queue  chan Capture
	logger Logger

	mu      sync.Mutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to repo. Call Start before Record.
func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		opts:   opts,
		queue:  make(chan Capture, opts.QueueSize),
		logger: logger,
	}
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.run()
}

// Record queues a capture without blocking. The capture time is set to now
// when zero.
func (r *Recorder) Record(c Capture) error {
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- c:
		return nil
	default:
		r.logger.Warn("capture catalog queue full, dropping entry",
			"device", c.Device, "path", c.Path)
		return ErrQueueFull
	}
}

// Close stops accepting captures and waits for queued ones to be stored.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if started {
		r.wg.Wait()
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for c := range r.queue {
		r.store(c)
	}
}

func (r *Recorder) store(c Capture) {
	if r.opts.HashFiles && c.Error == "" {
		sum, err := HashFile(c.Path)
		if err != nil {
			r.logger.Warn("hashing capture failed", "path", c.Path, "error", err)
		} else {
			c.Hash = sum
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &c); err != nil {
		r.logger.Error("recording capture failed", "device", c.Device, "path", c.Path, "error", err)
		return
	}
	r.logger.Debug("capture recorded", "id", c.ID, "device", c.Device, "path", c.Path)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
