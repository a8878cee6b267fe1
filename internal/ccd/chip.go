package ccd

import (
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// ChipCapability is a set of chip capability flags.
type ChipCapability uint8

// Chip capabilities. Once set they are never cleared.
const (
	ChipCanBin ChipCapability = 1 << iota
	ChipCanSubframe
	ChipCanAbort
)

// FrameBounds holds the declared limits of the frame fields.
type FrameBounds struct {
	MinX, MaxX int
	MinY, MaxY int
	MinW, MaxW int
	MinH, MaxH int
}

// BayerInfo describes the colour filter array of the sensor.
type BayerInfo struct {
	OffsetX int
	OffsetY int
	Pattern string
}

// ImageInfo describes the sensor geometry.
type ImageInfo struct {
	Width    int
	Height   int
	PixelX   float64
	PixelY   float64
	BitDepth int
}

// Chip controls one sensor head of a camera.
//
// Every operation reads or writes the chip's properties through the owning
// Device and fails when the backing property is not defined. Like Device,
// a Chip must only be used from the dispatch goroutine.
type Chip struct {
	dev   *Device
	typ   ChipType
	names chipProperties

	caps        ChipCapability
	mode        CaptureMode
	filter      string
	batch       bool
	frameLabels []string
	views       map[CaptureMode]View
	image       *imaging.Data
}

func newChip(dev *Device, typ ChipType) *Chip {
	c := &Chip{
		dev:   dev,
		typ:   typ,
		names: chipPropertyNames[typ],
		views: make(map[CaptureMode]View),
	}
	if dev.displays != nil {
		for _, mode := range []CaptureMode{ModeFocus, ModeGuide, ModeAlign} {
			if v := dev.displays.NewChipView(dev.name, typ, mode); v != nil {
				c.views[mode] = v
			}
		}
	}
	return c
}

// Type returns the sensor head type.
func (c *Chip) Type() ChipType { return c.typ }

// Capabilities returns the capability flags established so far.
func (c *Chip) Capabilities() ChipCapability { return c.caps }

// CanBin reports whether the binning property is writable.
func (c *Chip) CanBin() bool { return c.caps&ChipCanBin != 0 }

// CanSubframe reports whether the frame property is writable.
func (c *Chip) CanSubframe() bool { return c.caps&ChipCanSubframe != 0 }

// CanAbort reports whether the abort property is writable.
func (c *Chip) CanAbort() bool { return c.caps&ChipCanAbort != 0 }

func (c *Chip) setCapability(flag ChipCapability) {
	c.caps |= flag
}

// CaptureMode returns the mode the next image is taken for.
func (c *Chip) CaptureMode() CaptureMode { return c.mode }

// SetCaptureMode sets the mode the next image is taken for.
func (c *Chip) SetCaptureMode(mode CaptureMode) { c.mode = mode }

// CaptureFilter returns the display filter applied to new images.
func (c *Chip) CaptureFilter() string { return c.filter }

// SetCaptureFilter sets the display filter applied to new images.
func (c *Chip) SetCaptureFilter(filter string) { c.filter = filter }

// IsBatchMode reports whether images are saved as sequence files.
func (c *Chip) IsBatchMode() bool { return c.batch }

// SetBatchMode switches between sequence files and ephemeral previews.
func (c *Chip) SetBatchMode(batch bool) { c.batch = batch }

// FrameLabels returns the frame type labels the driver offers.
func (c *Chip) FrameLabels() []string {
	return append([]string(nil), c.frameLabels...)
}

// ImageData returns the most recently displayed image, or nil.
func (c *Chip) ImageData() *imaging.Data { return c.image }

// ImageView returns the view used for mode, or nil.
func (c *Chip) ImageView(mode CaptureMode) View { return c.views[mode] }

// SetImageView attaches a view for mode. A nil view detaches it.
func (c *Chip) SetImageView(view View, mode CaptureMode) {
	if view == nil {
		delete(c.views, mode)
		return
	}
	c.views[mode] = view
}

// frameFields returns the X, Y, WIDTH and HEIGHT elements of a frame vector.
func frameFields(v *indi.NumberVector) (x, y, w, h *indi.Number, ok bool) {
	if v == nil {
		return nil, nil, nil, nil, false
	}
	x, y, w, h = v.Find(elemX), v.Find(elemY), v.Find(elemWidth), v.Find(elemHeight)
	return x, y, w, h, x != nil && y != nil && w != nil && h != nil
}

// Frame returns the current subframe.
func (c *Chip) Frame() (x, y, w, h int, ok bool) {
	nx, ny, nw, nh, ok := frameFields(c.dev.props.Number(c.names.frame))
	if !ok {
		return 0, 0, 0, 0, false
	}
	return int(nx.Value), int(ny.Value), int(nw.Value), int(nh.Value), true
}

// FrameMinMax returns the declared bounds of the frame fields.
func (c *Chip) FrameMinMax() (FrameBounds, bool) {
	x, y, w, h, ok := frameFields(c.dev.props.Number(c.names.frame))
	if !ok {
		return FrameBounds{}, false
	}
	return FrameBounds{
		MinX: int(x.Min), MaxX: int(x.Max),
		MinY: int(y.Min), MaxY: int(y.Max),
		MinW: int(w.Min), MaxW: int(w.Max),
		MinH: int(h.Min), MaxH: int(h.Max),
	}, true
}

// SetFrame requests a subframe. An unchanged frame is not resent unless
// force is set.
func (c *Chip) SetFrame(x, y, w, h int, force bool) bool {
	v := c.dev.props.Number(c.names.frame)
	nx, ny, nw, nh, ok := frameFields(v)
	if !ok {
		return false
	}
	if !force &&
		nx.Value == float64(x) && ny.Value == float64(y) &&
		nw.Value == float64(w) && nh.Value == float64(h) {
		return true
	}

	edited := v.Clone()
	edited.Find(elemX).Value = float64(x)
	edited.Find(elemY).Value = float64(y)
	edited.Find(elemWidth).Value = float64(w)
	edited.Find(elemHeight).Value = float64(h)
	return c.dev.commitNumber(v, edited)
}

// ResetFrame requests the full sensor frame. It returns false without
// sending when the frame is already full.
func (c *Chip) ResetFrame() bool {
	return c.dev.resetFrame(c.dev.props.Number(c.names.frame))
}

// Capture starts an exposure of the given length in seconds.
//
// With ForceDSLRPresets set, an exposure strictly between the smallest and
// largest preset is replaced by the nearest preset.
func (c *Chip) Capture(seconds float64) bool {
	v := c.dev.props.Number(c.names.exposure)
	if v == nil || len(v.Numbers) == 0 {
		return false
	}

	if c.dev.opts.ForceDSLRPresets {
		if snapped := c.dev.presets.snap(seconds); snapped != seconds {
			c.dev.logger.Debug("exposure snapped to preset",
				"device", c.dev.name, "requested", seconds, "preset", snapped)
			seconds = snapped
		}
	}

	// Only the exposure value is sent; the stored vector is left to the
	// driver's update.
	req := &indi.NumberVector{
		Vector:  v.Vector,
		Numbers: []indi.Number{{Name: v.Numbers[0].Name, Value: seconds}},
	}
	if err := c.dev.props.SendNumber(req); err != nil {
		c.dev.logger.Warn("capture request failed", "device", c.dev.name, "chip", c.typ.String(), "error", err)
		return false
	}
	return true
}

// AbortExposure aborts the running exposure.
func (c *Chip) AbortExposure() bool {
	v := c.dev.props.Switch(c.names.abort)
	if v == nil || v.Find(elemAbort) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(elemAbort).On = true
	return c.dev.commitSwitch(v, edited)
}

// IsCapturing reports whether an exposure is in progress.
func (c *Chip) IsCapturing() bool {
	v := c.dev.props.Number(c.names.exposure)
	return v != nil && v.State == indi.StateBusy
}

func (c *Chip) binningFields() (*indi.NumberVector, *indi.Number, *indi.Number, bool) {
	v := c.dev.props.Number(c.names.binning)
	if v == nil {
		return nil, nil, nil, false
	}
	hor, ver := v.Find(elemHorBin), v.Find(elemVerBin)
	return v, hor, ver, hor != nil && ver != nil
}

// Binning returns the current horizontal and vertical binning.
func (c *Chip) Binning() (bx, by int, ok bool) {
	_, hor, ver, ok := c.binningFields()
	if !ok {
		return 1, 1, false
	}
	return int(hor.Value), int(ver.Value), true
}

// BinningType returns the binning as a square preset, based on the
// horizontal factor. Unknown factors report Bin1x1.
func (c *Chip) BinningType() BinningType {
	bx, _, ok := c.Binning()
	if !ok || bx < int(Bin1x1) || bx > int(Bin4x4) {
		return Bin1x1
	}
	return BinningType(bx)
}

// MaxBinning returns the declared maximum binning.
func (c *Chip) MaxBinning() (mx, my int, ok bool) {
	_, hor, ver, ok := c.binningFields()
	if !ok {
		return 1, 1, false
	}
	return int(hor.Max), int(ver.Max), true
}

// SetBinning requests a binning. Unchanged binning is not resent; factors
// below 1 or above the declared maximum are rejected without sending.
func (c *Chip) SetBinning(bx, by int) bool {
	v, hor, ver, ok := c.binningFields()
	if !ok {
		return false
	}
	if hor.Value == float64(bx) && ver.Value == float64(by) {
		return true
	}
	if bx < 1 || by < 1 || float64(bx) > hor.Max || float64(by) > ver.Max {
		c.dev.logger.Debug("binning out of range",
			"device", c.dev.name, "chip", c.typ.String(), "bin_x", bx, "bin_y", by)
		return false
	}

	edited := v.Clone()
	edited.Find(elemHorBin).Value = float64(bx)
	edited.Find(elemVerBin).Value = float64(by)
	return c.dev.commitNumber(v, edited)
}

// SetBinningType requests a square binning preset.
func (c *Chip) SetBinningType(t BinningType) bool {
	if t < Bin1x1 || t > Bin4x4 {
		return false
	}
	return c.SetBinning(t.factor(), t.factor())
}

// ISOIndex returns the index of the selected ISO, or -1.
func (c *Chip) ISOIndex() int {
	v := c.dev.props.Switch(propISO)
	if v == nil {
		return -1
	}
	return v.OnIndex()
}

// SetISOIndex selects the ISO at index.
func (c *Chip) SetISOIndex(index int) bool {
	v := c.dev.props.Switch(propISO)
	if v == nil || index < 0 || index >= len(v.Switches) {
		return false
	}
	edited := v.Clone()
	edited.Reset()
	edited.Switches[index].On = true
	return c.dev.commitSwitch(v, edited)
}

// ISOList returns the ISO labels the driver offers.
func (c *Chip) ISOList() []string {
	v := c.dev.props.Switch(propISO)
	if v == nil {
		return nil
	}
	labels := make([]string, len(v.Switches))
	for i, s := range v.Switches {
		labels[i] = s.Label
	}
	return labels
}

// FrameType returns the selected frame type. It reports FrameLight when
// the property is missing or nothing is selected.
func (c *Chip) FrameType() FrameType {
	if t, ok := frameTypeSwitches.selected(c.dev.props.Switch(c.names.frameType)); ok {
		return t
	}
	return FrameLight
}

// SetFrameTypeName selects a frame type by name ("Light", "FRAME_DARK", ...).
func (c *Chip) SetFrameTypeName(name string) bool {
	t, ok := ParseFrameType(name)
	if !ok {
		c.dev.logger.Warn("unknown frame type", "device", c.dev.name, "name", name)
		return false
	}
	return c.SetFrameType(t)
}

// SetFrameType selects a frame type. Selecting anything but a light frame
// puts the chip in calibrate mode.
func (c *Chip) SetFrameType(t FrameType) bool {
	v := c.dev.props.Switch(c.names.frameType)
	if v == nil {
		return false
	}
	s := v.Find(frameTypeSwitches.name(t))
	if s == nil {
		return false
	}
	if s.On {
		return true
	}

	if t != FrameLight {
		c.mode = ModeCalibrate
	}

	edited := v.Clone()
	edited.Reset()
	edited.Find(s.Name).On = true
	return c.dev.commitSwitch(v, edited)
}

// BayerInfo returns the colour filter array layout.
func (c *Chip) BayerInfo() (BayerInfo, bool) {
	v := c.dev.props.Text(propCFA)
	if v == nil || len(v.Texts) < 3 {
		return BayerInfo{}, false
	}
	ox, _ := strconv.Atoi(strings.TrimSpace(v.Texts[0].Value))
	oy, _ := strconv.Atoi(strings.TrimSpace(v.Texts[1].Value))
	return BayerInfo{OffsetX: ox, OffsetY: oy, Pattern: v.Texts[2].Value}, true
}

// ImageInfo returns the sensor geometry reported by the driver.
func (c *Chip) ImageInfo() (ImageInfo, bool) {
	v := c.dev.props.Number(c.names.info)
	if v == nil || len(v.Numbers) < 6 {
		return ImageInfo{}, false
	}
	return ImageInfo{
		Width:    int(v.Numbers[0].Value),
		Height:   int(v.Numbers[1].Value),
		PixelX:   v.Numbers[3].Value,
		PixelY:   v.Numbers[4].Value,
		BitDepth: int(v.Numbers[5].Value),
	}, true
}

// SetImageInfo sends the sensor geometry for drivers that cannot read it
// from the hardware.
func (c *Chip) SetImageInfo(info ImageInfo) bool {
	v := c.dev.props.Number(c.names.info)
	if v == nil || len(v.Numbers) < 6 {
		return false
	}
	edited := v.Clone()
	edited.Numbers[0].Value = float64(info.Width)
	edited.Numbers[1].Value = float64(info.Height)
	edited.Numbers[2].Value = math.Hypot(info.PixelX, info.PixelY)
	edited.Numbers[3].Value = info.PixelX
	edited.Numbers[4].Value = info.PixelY
	edited.Numbers[5].Value = float64(info.BitDepth)
	return c.dev.commitNumber(v, edited)
}

// SetRapidGuide enables or disables rapid guiding on this chip.
func (c *Chip) SetRapidGuide(enable bool) bool {
	v := c.dev.props.Switch(c.names.rapidGuide)
	if v == nil || len(v.Switches) < 2 {
		return false
	}
	s := v.Find(elemRapidEnable)
	if s == nil {
		return false
	}
	if s.On == enable {
		return true
	}
	edited := v.Clone()
	edited.Reset()
	edited.Switches[0].On = enable
	edited.Switches[1].On = !enable
	return c.dev.commitSwitch(v, edited)
}

// ConfigureRapidGuide sets the rapid guide options.
func (c *Chip) ConfigureRapidGuide(autoLoop, sendImage, showMarker bool) bool {
	v := c.dev.props.Switch(c.names.rapidSetup)
	if v == nil {
		return false
	}
	loop, send, marker := v.Find(elemRapidAutoLoop), v.Find(elemRapidSendImage), v.Find(elemRapidShowMarker)
	if loop == nil || send == nil || marker == nil {
		return false
	}
	if loop.On == autoLoop && send.On == sendImage && marker.On == showMarker {
		return true
	}
	edited := v.Clone()
	edited.Find(elemRapidAutoLoop).On = autoLoop
	edited.Find(elemRapidSendImage).On = sendImage
	edited.Find(elemRapidShowMarker).On = showMarker
	return c.dev.commitSwitch(v, edited)
}
