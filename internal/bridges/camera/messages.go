package camera

import (
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// CommandMessage asks a camera to do something.
// Topic: graylogic/command/indi/{device}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Device is the INDI device name. Over MQTT it may be omitted, in
	// which case the device is taken from the topic.
	Device string `json:"device"`

	// Command is one of the Cmd* names.
	Command string `json:"command"`

	// Chip is "primary" (default) or "guide" for chip commands.
	Chip string `json:"chip,omitempty"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"exposure": 30, "batch": true} for capture
	//   {"x": 0, "y": 0, "width": 1280, "height": 1024} for set_frame
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "mqtt").
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the command was sent to the driver.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/indi/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeRejected          = "REJECTED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ImageSummary describes a decoded image without its pixels.
type ImageSummary struct {
	Filename string `json:"filename,omitempty"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels,omitempty"`
	Bitpix   int    `json:"bitpix,omitempty"`
	Size     int    `json:"size,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

func summarizeImage(d *imaging.Data) *ImageSummary {
	if d == nil {
		return nil
	}
	return &ImageSummary{
		Filename: d.Filename,
		Format:   d.Format,
		Width:    d.Width,
		Height:   d.Height,
		Channels: d.Channels,
		Bitpix:   d.Bitpix,
		Size:     d.Size,
		Mode:     d.Mode,
	}
}

// BlobSummary describes a received BLOB without its payload.
type BlobSummary struct {
	Vector  string `json:"vector,omitempty"`
	Element string `json:"element"`
	Format  string `json:"format"`
	Size    int    `json:"size"`
}

func summarizeBlob(b *indi.Blob) *BlobSummary {
	if b == nil {
		return nil
	}
	s := &BlobSummary{Element: b.Name, Format: b.Format, Size: b.Size}
	if b.Vector != nil {
		s.Vector = b.Vector.Name
	}
	return s
}

// EventMessage is a camera notification.
// Topic: graylogic/event/indi/{device}/{kind}
type EventMessage struct {
	Device    string        `json:"device"`
	Kind      string        `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	Chip      string        `json:"chip,omitempty"`
	Value     *float64      `json:"value,omitempty"`
	Average   *float64      `json:"average,omitempty"`
	State     string        `json:"state,omitempty"`
	X         *float64      `json:"x,omitempty"`
	Y         *float64      `json:"y,omitempty"`
	Fit       *float64      `json:"fit,omitempty"`
	Lost      bool          `json:"lost,omitempty"`
	On        *bool         `json:"on,omitempty"`
	Path      string        `json:"path,omitempty"`
	Format    string        `json:"format,omitempty"`
	Size      int           `json:"size,omitempty"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Image     *ImageSummary `json:"image,omitempty"`
	Blob      *BlobSummary  `json:"blob,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// NewEventMessage converts a device notification. Only the fields that
// belong to the event kind are set.
func NewEventMessage(ev ccd.Event) EventMessage {
	msg := EventMessage{
		Device:    ev.Device,
		Kind:      string(ev.Kind),
		Timestamp: ev.Time.UTC(),
	}

	switch ev.Kind {
	case ccd.EventExposure:
		msg.Chip = ev.Chip.String()
		msg.Value = ptr(ev.Value)
		msg.State = string(ev.State)
	case ccd.EventCaptureFailed:
		msg.Chip = ev.Chip.String()
	case ccd.EventTemperature:
		msg.Value = ptr(ev.Value)
	case ccd.EventFPS:
		msg.Value = ptr(ev.Value)
		msg.Average = ptr(ev.Average)
	case ccd.EventGuideStar:
		msg.Chip = ev.Chip.String()
		if ev.X == -1 && ev.Y == -1 && ev.Fit == -1 {
			msg.Lost = true
		} else {
			msg.X, msg.Y, msg.Fit = ptr(ev.X), ptr(ev.Y), ptr(ev.Fit)
		}
	case ccd.EventCooler, ccd.EventVideoStream, ccd.EventVideoRecord:
		msg.On = ptr(ev.On)
	case ccd.EventRemoteFile, ccd.EventPreviewGenerated:
		msg.Path = ev.Path
	case ccd.EventBlobUpdated:
		msg.Blob = summarizeBlob(ev.Blob)
		if ev.Blob == nil {
			msg.Error = "capture could not be saved"
		}
	case ccd.EventNewImage:
		msg.Chip = ev.Chip.String()
		msg.Image = summarizeImage(ev.Image)
	case ccd.EventFileSaved:
		msg.Chip = ev.Chip.String()
		msg.Path = ev.Path
		msg.Format = ev.Format
	case ccd.EventFileWritten:
		msg.Chip = ev.Chip.String()
		msg.Path = ev.Path
		msg.Format = ev.Format
		msg.Size = ev.Size
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	case ccd.EventNotice:
		msg.Message = ev.Message
	case ccd.EventVideoFrame:
		msg.Size = len(ev.Frame)
	}
	return msg
}

// ExposureState is the last reported exposure of one chip.
type ExposureState struct {
	Remaining float64 `json:"remaining"`
	State     string  `json:"state"`
}

// StateMessage is the retained state of a camera.
// Topic: graylogic/state/indi/{device}
type StateMessage struct {
	Device      string                   `json:"device"`
	Timestamp   time.Time                `json:"timestamp"`
	Temperature *float64                 `json:"temperature,omitempty"`
	CoolerOn    *bool                    `json:"cooler_on,omitempty"`
	Streaming   bool                     `json:"streaming"`
	Recording   bool                     `json:"recording"`
	Exposures   map[string]ExposureState `json:"exposures,omitempty"`
	FPS         *float64                 `json:"fps,omitempty"`
	LastFile    string                   `json:"last_file,omitempty"`
	Captures    int                      `json:"captures"`
	Failures    int                      `json:"failures"`
}

func (s *StateMessage) clone() StateMessage {
	c := *s
	if s.Exposures != nil {
		c.Exposures = make(map[string]ExposureState, len(s.Exposures))
		for k, v := range s.Exposures {
			c.Exposures[k] = v
		}
	}
	return c
}

// HealthStatus is the overall bridge status.
type HealthStatus string

// Health statuses.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically.
// Topic: graylogic/health/indi (retained)
type HealthMessage struct {
	Bridge     string          `json:"bridge"`
	Status     HealthStatus    `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Version    string          `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	UptimeSecs int64           `json:"uptime_seconds"`
	Cameras    int             `json:"cameras"`
	Connection *ConnectionInfo `json:"connection,omitempty"`
}

// ConnectionInfo reports INDI session statistics.
type ConnectionInfo struct {
	Address      string    `json:"address"`
	Connected    bool      `json:"connected"`
	MessagesRx   uint64    `json:"messages_rx"`
	MessagesTx   uint64    `json:"messages_tx"`
	BlobsRx      uint64    `json:"blobs_rx"`
	Errors       uint64    `json:"errors"`
	Reconnects   uint64    `json:"reconnects"`
	Devices      int       `json:"devices"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}
