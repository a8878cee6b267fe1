package ccd

import (
	"context"

	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// Properties is the view of the property directory a Device works on.
// *indi.Device satisfies it.
type Properties interface {
	Name() string
	Number(name string) *indi.NumberVector
	Switch(name string) *indi.SwitchVector
	Text(name string) *indi.TextVector
	Blob(name string) *indi.BlobVector
	SendNumber(v *indi.NumberVector) error
	SendSwitch(v *indi.SwitchVector) error
	SendText(v *indi.TextVector) error
	BlobEnabled(property string) bool
	SetBlobMode(mode indi.BlobMode, property string) error
	IsConnected() bool
}

var _ Properties = (*indi.Device)(nil)

// Decoder turns a payload into image data. format is the lower-case file
// extension without the leading dot ("fits", "jpg", "cr2").
type Decoder interface {
	Decode(data []byte, format string) (*imaging.Data, error)
}

// View displays one image in place. Chips own one view per dedicated
// capture mode (focus, guide, align).
type View interface {
	SetFilter(filter string)
	Load(data *imaging.Data) error
}

// Viewer is a multi-tab image viewer shared by the normal and calibrate
// modes of a device.
type Viewer interface {
	// Load opens data in a new tab and returns the tab id.
	Load(data *imaging.Data, mode CaptureMode, filter, title string) (int, error)
	// Update replaces the image in an existing tab and returns its id.
	Update(data *imaging.Data, tab int, filter string) (int, error)
	// View returns the view backing a tab, or nil.
	View(tab int) View
	// OnClosed registers the callback run when a tab is closed. It replaces
	// any earlier callback.
	OnClosed(fn func(tab int))
	Show()
	Raise()
}

// StreamDisplay shows live video frames.
type StreamDisplay interface {
	SetSize(width, height int)
	Enable(on bool)
	Enabled() bool
	Show()
	Close()
	NewFrame(data []byte, format string)
	// OnHidden and OnFrame replace any earlier callback; passing nil
	// disconnects it.
	OnHidden(fn func())
	OnFrame(fn func(frame []byte))
}

// Displays creates the display surfaces of a device.
type Displays interface {
	NewViewer(device string) Viewer
	NewStream(device string) StreamDisplay
	NewChipView(device string, chip ChipType, mode CaptureMode) View
}

// MediaConnector is the websocket side channel some drivers offer for
// image transfer. *indi.MediaClient satisfies it.
type MediaConnector interface {
	Connect(ctx context.Context, url string) error
	Disconnect()
}

var _ MediaConnector = (*indi.MediaClient)(nil)

// Logger defines the logging interface used by Device.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
