package ccd

import (
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// receivedNoticeInterval limits the "image file is received" notice.
const receivedNoticeInterval = 3 * time.Second

// Capability is a set of device capability flags.
type Capability uint8

// Device capabilities. They are established while properties are defined
// and never cleared.
const (
	CapCooler Capability = 1 << iota
	CapCoolerControl
	CapCanCool
	CapVideoStream
	CapGuideHead
)

// Has reports whether every flag in flag is set.
func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// Options is the capture configuration a Device consumes.
type Options struct {
	// ForceDSLRPresets snaps exposures to the nearest driver preset.
	ForceDSLRPresets bool
	// UseFITSViewer displays batch captures in the shared viewer.
	UseFITSViewer bool
	// UseSummaryPreview decodes batch captures for the summary preview.
	UseSummaryPreview bool
	// SinglePreviewTab reuses one viewer tab per capture mode.
	SinglePreviewTab bool
	// SingleWindowForAllDevices prefixes preview titles with the device name.
	SingleWindowForAllDevices bool
	// AutoConvertImageToFITS writes a FITS copy of raster captures.
	AutoConvertImageToFITS bool
	// UseExternalImageViewer announces raster and raw captures by path
	// instead of decoding them.
	UseExternalImageViewer bool
	// DefaultCaptureDirectory is used for batch captures when the device
	// has no directory of its own.
	DefaultCaptureDirectory string
	// FocusViewerOnNewImage raises the viewer on each new image.
	FocusViewerOnNewImage bool
	// TempDirectory holds preview files. Defaults to os.TempDir().
	TempDirectory string
	// MediaHost is the host of the websocket media channel.
	MediaHost string
}

// Config holds the collaborators of a Device.
type Config struct {
	// Properties is the device's property directory. Required.
	Properties Properties
	// Decoder decodes payloads for display. Required.
	Decoder Decoder
	// Notifier receives notifications. Optional.
	Notifier Notifier
	// Displays creates viewers and stream displays. Optional; without it
	// nothing is displayed.
	Displays Displays
	// Media is the websocket media channel. Optional.
	Media MediaConnector
	// Options is the capture configuration.
	Options Options
	// Logger is optional.
	Logger Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// WriteFile writes a capture file. Defaults to writing with mode 0644.
	WriteFile func(filename string, data []byte) error
}

// fieldBinding names one element of a number vector. The element is looked
// up on each use so a removed vector makes the binding unresolvable until
// it is defined again.
type fieldBinding struct {
	vector string
	field  string
	perm   indi.Perm
}

// Device is the controller of one INDI camera.
//
// See the package documentation for the threading rules.
type Device struct {
	name     string
	props    Properties
	decoder  Decoder
	notifier Notifier
	displays Displays
	media    MediaConnector
	opts     Options
	logger   Logger
	now      func() time.Time

	primary *Chip
	guide   *Chip
	caps    Capability

	transferFormat TransferFormat
	telescope      TelescopeType
	looping        bool
	presets        *presetTable
	gain           *fieldBinding
	offset         *fieldBinding

	seqPrefix  string
	nextSeqID  int
	captureDir string
	filter     string

	viewer         Viewer
	normalTab      int
	calibrationTab int
	stream         StreamDisplay

	writer    *fileWriter
	writeFile func(string, []byte) error
	received  *rateLimiter

	onDefine map[string]func(indi.Property)
	onNumber map[string]func(*indi.NumberVector)
	onSwitch map[string]func(*indi.SwitchVector)
	onText   map[string]func(*indi.TextVector)
}

// NewDevice creates the controller for the device behind cfg.Properties.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.Properties == nil {
		return nil, fmt.Errorf("%w: properties are required", ErrInvalidArgument)
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("%w: decoder is required", ErrInvalidArgument)
	}

	d := &Device{
		name:           cfg.Properties.Name(),
		props:          cfg.Properties,
		decoder:        cfg.Decoder,
		notifier:       cfg.Notifier,
		displays:       cfg.Displays,
		media:          cfg.Media,
		opts:           cfg.Options,
		logger:         cfg.Logger,
		now:            cfg.Now,
		writeFile:      cfg.WriteFile,
		presets:        newPresetTable(),
		nextSeqID:      1,
		normalTab:      -1,
		calibrationTab: -1,
	}
	if d.notifier == nil {
		d.notifier = noopNotifier{}
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.writeFile == nil {
		d.writeFile = writeCaptureFile
	}
	if d.opts.TempDirectory == "" {
		d.opts.TempDirectory = os.TempDir()
	}
	if d.opts.MediaHost == "" {
		d.opts.MediaHost = "localhost"
	}

	d.received = newRateLimiter(receivedNoticeInterval, d.now)
	d.writer = newFileWriter(d.writeFile, d.fileWritten)
	d.primary = newChip(d, ChipPrimary)
	d.buildDispatch()
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Capabilities returns the capability flags established so far.
func (d *Device) Capabilities() Capability { return d.caps }

// HasGuideHead reports whether the camera has a guide head.
func (d *Device) HasGuideHead() bool { return d.caps.Has(CapGuideHead) }

// HasCooler reports whether the camera reports a temperature.
func (d *Device) HasCooler() bool { return d.caps.Has(CapCooler) }

// HasCoolerControl reports whether the cooler can be switched.
func (d *Device) HasCoolerControl() bool { return d.caps.Has(CapCoolerControl) }

// CanCool reports whether the temperature set point is writable.
func (d *Device) CanCool() bool { return d.caps.Has(CapCanCool) }

// HasVideoStream reports whether the camera can stream video.
func (d *Device) HasVideoStream() bool { return d.caps.Has(CapVideoStream) }

// IsConnected reports whether the driver is connected to the hardware.
func (d *Device) IsConnected() bool { return d.props.IsConnected() }

// Chip returns the sensor head of the given type, or nil.
func (d *Device) Chip(t ChipType) *Chip {
	switch t {
	case ChipPrimary:
		return d.primary
	case ChipGuide:
		return d.guide
	}
	return nil
}

// PrimaryChip returns the main sensor head.
func (d *Device) PrimaryChip() *Chip { return d.primary }

// GuideChip returns the guide head, or nil if the camera has none.
func (d *Device) GuideChip() *Chip { return d.guide }

// ensureGuideChip creates the guide head on first use.
func (d *Device) ensureGuideChip() *Chip {
	if d.guide == nil {
		d.guide = newChip(d, ChipGuide)
		d.caps |= CapGuideHead
		d.logger.Debug("guide head detected", "device", d.name)
	}
	return d.guide
}

// TransferFormat returns the payload format the driver sends.
func (d *Device) TransferFormat() TransferFormat { return d.transferFormat }

// TelescopeType returns the optical train the camera is attached to.
func (d *Device) TelescopeType() TelescopeType { return d.telescope }

// IsLooping reports whether the driver loops exposures.
func (d *Device) IsLooping() bool { return d.looping }

// ExposurePresets returns a copy of the preset table.
func (d *Device) ExposurePresets() map[string]float64 { return d.presets.snapshot() }

// ExposurePresetsMinMax returns the smallest and largest preset.
func (d *Device) ExposurePresetsMinMax() (minimum, maximum float64) {
	return d.presets.min, d.presets.max
}

// Close closes the stream display and the media channel and waits for a
// pending file write.
func (d *Device) Close() {
	if d.stream != nil {
		d.stream.OnHidden(nil)
		d.stream.OnFrame(nil)
		d.stream.Close()
		d.stream = nil
	}
	if d.media != nil {
		d.media.Disconnect()
	}
	d.writer.Close()
}

// commitNumber sends edited and, once sent, copies its values into the
// stored vector v.
func (d *Device) commitNumber(v, edited *indi.NumberVector) bool {
	if err := d.props.SendNumber(edited); err != nil {
		d.logger.Warn("send failed", "device", d.name, "property", v.Name, "error", err)
		return false
	}
	copy(v.Numbers, edited.Numbers)
	return true
}

// commitSwitch sends edited and, once sent, copies its states into v.
func (d *Device) commitSwitch(v, edited *indi.SwitchVector) bool {
	if err := d.props.SendSwitch(edited); err != nil {
		d.logger.Warn("send failed", "device", d.name, "property", v.Name, "error", err)
		return false
	}
	copy(v.Switches, edited.Switches)
	v.State = edited.State
	return true
}

// commitText sends edited and, once sent, copies its values into v.
func (d *Device) commitText(v, edited *indi.TextVector) bool {
	if err := d.props.SendText(edited); err != nil {
		d.logger.Warn("send failed", "device", d.name, "property", v.Name, "error", err)
		return false
	}
	copy(v.Texts, edited.Texts)
	return true
}

// resetFrame moves a frame vector to its full extent. It returns false
// when the frame is already full.
func (d *Device) resetFrame(v *indi.NumberVector) bool {
	x, y, w, h, ok := frameFields(v)
	if !ok {
		return false
	}
	if x.Value == x.Min && y.Value == y.Min && w.Value == w.Max && h.Value == h.Max {
		return false
	}

	edited := v.Clone()
	edited.Find(elemX).Value = x.Min
	edited.Find(elemY).Value = y.Min
	edited.Find(elemWidth).Value = w.Max
	edited.Find(elemHeight).Value = h.Max
	return d.commitNumber(v, edited)
}

// emit stamps and delivers a notification.
func (d *Device) emit(ev Event) {
	ev.Device = d.name
	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	d.notifier.Notify(ev)
}

func (d *Device) notice(msg string) {
	d.emit(Event{Kind: EventNotice, Message: msg})
}
