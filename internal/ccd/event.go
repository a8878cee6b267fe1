package ccd

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// EventKind identifies a notification emitted by a Device.
type EventKind string

// Notification kinds.
const (
	EventExposure         EventKind = "exposure"
	EventCaptureFailed    EventKind = "capture_failed"
	EventTemperature      EventKind = "temperature"
	EventFPS              EventKind = "fps"
	EventGuideStar        EventKind = "guide_star"
	EventCooler           EventKind = "cooler"
	EventVideoStream      EventKind = "video_stream"
	EventVideoRecord      EventKind = "video_record"
	EventRemoteFile       EventKind = "remote_file"
	EventBlobUpdated      EventKind = "blob_updated"
	EventNewImage         EventKind = "new_image"
	EventPreviewGenerated EventKind = "preview_generated"
	EventFileSaved        EventKind = "file_saved"
	EventFileWritten      EventKind = "file_written"
	EventNotice           EventKind = "notice"
	EventVideoFrame       EventKind = "video_frame"
)

// Event is a notification from a Device.
//
// Which fields are set depends on Kind:
//   - exposure: Chip, Value, State
//   - capture_failed: Chip
//   - temperature: Value
//   - fps: Value (instant), Average
//   - guide_star: Chip, X, Y, Fit (all -1 when the star was lost)
//   - cooler, video_stream, video_record: On
//   - remote_file, preview_generated: Path
//   - blob_updated: Blob (nil when materialization failed)
//   - new_image: Image (nil when the image was saved but not decoded)
//   - file_saved: Chip, Path, Format
//   - file_written: Chip, Path, Format, Size, Err
//   - notice: Message
//   - video_frame: Frame
type Event struct {
	Kind    EventKind
	Device  string
	Chip    ChipType
	Value   float64
	Average float64
	State   indi.State
	X       float64
	Y       float64
	Fit     float64
	On      bool
	Path    string
	Format  string
	Size    int
	Message string
	Err     error
	Blob    *indi.Blob
	Image   *imaging.Data
	Frame   []byte
	Time    time.Time
}

// Notifier receives device notifications. Notify is called from the
// dispatch goroutine and, for file_written, from the writer goroutine.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ev Event)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev Event) { f(ev) }

type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}

// rateLimiter lets one event through per interval.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newRateLimiter(interval time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{interval: interval, now: now}
}

// Allow reports whether an event may be emitted now and, if so, starts a
// new interval.
func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
