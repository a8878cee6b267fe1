package ccd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// mediaConnectTimeout bounds the websocket media handshake.
const mediaConnectTimeout = 5 * time.Second

// buildDispatch builds the property name tables used by the event
// callbacks.
func (d *Device) buildDispatch() {
	d.onDefine = map[string]func(indi.Property){
		propGuiderExposure:    func(indi.Property) { d.ensureGuideChip() },
		propCCDFrameType:      d.defineFrameTypes,
		propCCDFrame:          d.defineChipCapability(ChipPrimary, ChipCanSubframe),
		propGuiderFrame:       d.defineChipCapability(ChipGuide, ChipCanSubframe),
		propCCDBinning:        d.defineChipCapability(ChipPrimary, ChipCanBin),
		propGuiderBinning:     d.defineChipCapability(ChipGuide, ChipCanBin),
		propCCDAbort:          d.defineChipCapability(ChipPrimary, ChipCanAbort),
		propGuiderAbort:       d.defineChipCapability(ChipGuide, ChipCanAbort),
		propTemperature:       d.defineTemperature,
		propCooler:            func(indi.Property) { d.caps |= CapCoolerControl },
		propVideoStream:       func(indi.Property) { d.caps |= CapVideoStream },
		propTransferFormat:    d.defineTransferFormat,
		propExposurePresets:   d.definePresets,
		propExposureLoop:      d.defineLooping,
		propTelescopeType:     d.defineTelescopeType,
		propWebsocketSettings: d.connectMedia,
	}

	d.onNumber = map[string]func(*indi.NumberVector){
		propCCDExposure:     d.exposureUpdated(ChipPrimary),
		propGuiderExposure:  d.exposureUpdated(ChipGuide),
		propTemperature:     d.temperatureUpdated,
		propFPS:             d.fpsUpdated,
		propCCDRapidData:    d.guideStarUpdated(ChipPrimary),
		propGuiderRapidData: d.guideStarUpdated(ChipGuide),
	}

	d.onSwitch = map[string]func(*indi.SwitchVector){
		propCooler:         d.coolerUpdated,
		propTransferFormat: func(v *indi.SwitchVector) { d.transferFormat = transferFormatOf(v) },
		propRecordStream:   d.recordUpdated,
		propTelescopeType:  func(v *indi.SwitchVector) { d.telescope = telescopeTypeOf(v) },
		propExposureLoop:   func(v *indi.SwitchVector) { d.looping = switchOn(v, elemLoopOn) },
		propConnection:     d.connectionUpdated,
	}

	d.onText = map[string]func(*indi.TextVector){
		propFilePath: d.remoteFileUpdated,
	}
}

// switchOn reports whether the named switch exists and is on.
func switchOn(v *indi.SwitchVector, name string) bool {
	s := v.Find(name)
	return s != nil && s.On
}

func transferFormatOf(v *indi.SwitchVector) TransferFormat {
	if switchOn(v, transferFormatSwitches.name(FormatNative)) {
		return FormatNative
	}
	return FormatFITS
}

func telescopeTypeOf(v *indi.SwitchVector) TelescopeType {
	if switchOn(v, telescopeTypeSwitches.name(TelescopePrimary)) {
		return TelescopePrimary
	}
	return TelescopeGuide
}

// PropertyDefined is called when the driver defines a property.
func (d *Device) PropertyDefined(p indi.Property) {
	if fn, ok := d.onDefine[p.Meta().Name]; ok {
		fn(p)
		return
	}
	if v, ok := p.(*indi.NumberVector); ok {
		d.discoverGainOffset(v)
	}
}

// PropertyRemoved is called after the driver deleted a property.
func (d *Device) PropertyRemoved(name string) {
	if name == propWebsocketSettings && d.media != nil {
		d.media.Disconnect()
	}
	if (d.gain != nil && d.gain.vector == name) || (d.offset != nil && d.offset.vector == name) {
		d.logger.Debug("gain/offset property removed", "device", d.name, "property", name)
	}
}

// NumberUpdated is called when the driver updates a number vector.
func (d *Device) NumberUpdated(v *indi.NumberVector) {
	if fn, ok := d.onNumber[v.Name]; ok {
		fn(v)
	}
}

// SwitchUpdated is called when the driver updates a switch vector.
func (d *Device) SwitchUpdated(v *indi.SwitchVector) {
	if fn, ok := d.onSwitch[v.Name]; ok {
		fn(v)
		return
	}
	if strings.HasSuffix(v.Name, videoStreamSuffix) {
		d.videoStreamUpdated(v)
	}
}

// TextUpdated is called when the driver updates a text vector.
func (d *Device) TextUpdated(v *indi.TextVector) {
	if fn, ok := d.onText[v.Name]; ok {
		fn(v)
	}
}

// Registration handlers.

func (d *Device) defineFrameTypes(p indi.Property) {
	v, ok := p.(*indi.SwitchVector)
	if !ok {
		return
	}
	labels := make([]string, 0, len(v.Switches))
	for _, s := range v.Switches {
		labels = append(labels, s.Label)
	}
	d.primary.frameLabels = labels
}

func (d *Device) defineChipCapability(t ChipType, flag ChipCapability) func(indi.Property) {
	return func(p indi.Property) {
		chip := d.primary
		if t == ChipGuide {
			chip = d.ensureGuideChip()
		}
		if p.Meta().Perm.Writable() {
			chip.setCapability(flag)
		}
	}
}

func (d *Device) defineTemperature(p indi.Property) {
	v, ok := p.(*indi.NumberVector)
	if !ok {
		return
	}
	d.caps |= CapCooler
	if v.Perm.Writable() {
		d.caps |= CapCanCool
	}
	if len(v.Numbers) > 0 {
		d.emit(Event{Kind: EventTemperature, Value: v.Numbers[0].Value})
	}
}

func (d *Device) defineTransferFormat(p indi.Property) {
	if v, ok := p.(*indi.SwitchVector); ok {
		d.transferFormat = transferFormatOf(v)
	}
}

func (d *Device) definePresets(p indi.Property) {
	v, ok := p.(*indi.SwitchVector)
	if !ok {
		return
	}
	for _, s := range v.Switches {
		if !d.presets.insert(s.Label) {
			d.logger.Debug("skipping exposure preset", "device", d.name, "label", s.Label)
		}
	}
}

func (d *Device) defineLooping(p indi.Property) {
	if v, ok := p.(*indi.SwitchVector); ok {
		d.looping = switchOn(v, elemLoopOn)
	}
}

func (d *Device) defineTelescopeType(p indi.Property) {
	if v, ok := p.(*indi.SwitchVector); ok {
		d.telescope = telescopeTypeOf(v)
	}
}

func (d *Device) connectMedia(p indi.Property) {
	v, ok := p.(*indi.NumberVector)
	if !ok || len(v.Numbers) == 0 || d.media == nil {
		return
	}
	url := fmt.Sprintf("ws://%s:%d", d.opts.MediaHost, int(v.Numbers[0].Value))

	ctx, cancel := context.WithTimeout(context.Background(), mediaConnectTimeout)
	defer cancel()
	if err := d.media.Connect(ctx, url); err != nil {
		d.logger.Warn("media channel connect failed", "device", d.name, "url", url, "error", err)
	}
}

// discoverGainOffset binds gain and offset to the first number elements
// named or labelled "gain" and "offset". A binding is never replaced.
func (d *Device) discoverGainOffset(v *indi.NumberVector) {
	if d.gain != nil && d.offset != nil {
		return
	}
	for _, n := range v.Numbers {
		name, label := strings.ToLower(n.Name), strings.ToLower(n.Label)
		switch {
		case name == "gain" || label == "gain":
			if d.gain == nil {
				d.gain = &fieldBinding{vector: v.Name, field: n.Name, perm: v.Perm}
				d.logger.Debug("gain control found", "device", d.name, "property", v.Name, "element", n.Name)
			}
		case name == "offset" || label == "offset":
			if d.offset == nil {
				d.offset = &fieldBinding{vector: v.Name, field: n.Name, perm: v.Perm}
				d.logger.Debug("offset control found", "device", d.name, "property", v.Name, "element", n.Name)
			}
		}
	}
}

// Number handlers.

func (d *Device) exposureUpdated(t ChipType) func(*indi.NumberVector) {
	return func(v *indi.NumberVector) {
		chip := d.Chip(t)
		if chip == nil {
			return
		}
		if n := v.Find(chip.names.exposureValue); n != nil {
			d.emit(Event{Kind: EventExposure, Chip: t, Value: n.Value, State: v.State})
		}
		if t == ChipPrimary && v.State == indi.StateAlert {
			d.emit(Event{Kind: EventCaptureFailed, Chip: t})
		}
	}
}

func (d *Device) temperatureUpdated(v *indi.NumberVector) {
	d.caps |= CapCooler
	if n := v.Find(elemTemperature); n != nil {
		d.emit(Event{Kind: EventTemperature, Value: n.Value})
	}
}

func (d *Device) fpsUpdated(v *indi.NumberVector) {
	if len(v.Numbers) < 2 {
		return
	}
	d.emit(Event{Kind: EventFPS, Value: v.Numbers[0].Value, Average: v.Numbers[1].Value})
}

func (d *Device) guideStarUpdated(t ChipType) func(*indi.NumberVector) {
	return func(v *indi.NumberVector) {
		if d.Chip(t) == nil {
			return
		}
		if v.State == indi.StateAlert {
			d.emit(Event{Kind: EventGuideStar, Chip: t, X: -1, Y: -1, Fit: -1})
			return
		}

		x, y, fit := -1.0, -1.0, -1.0
		if n := v.Find(elemGuideStarX); n != nil {
			x = n.Value
		}
		if n := v.Find(elemGuideStarY); n != nil {
			y = n.Value
		}
		if n := v.Find(elemGuideStarFit); n != nil {
			fit = n.Value
		}
		if x >= 0 && y >= 0 && fit >= 0 {
			d.emit(Event{Kind: EventGuideStar, Chip: t, X: x, Y: y, Fit: fit})
		}
	}
}

// Switch handlers.

func (d *Device) coolerUpdated(v *indi.SwitchVector) {
	d.caps |= CapCoolerControl
	on := switchOn(v, elemCoolerOn)
	if v.Find(elemCoolerOn) == nil && len(v.Switches) > 0 {
		on = v.Switches[0].On
	}
	d.emit(Event{Kind: EventCooler, On: on})
}

// videoStreamUpdated handles every *VIDEO_STREAM switch. Streams are only
// displayed when BLOB delivery is enabled for the camera.
func (d *Device) videoStreamUpdated(v *indi.SwitchVector) {
	if !d.props.BlobEnabled(propPrimaryBlob) || len(v.Switches) == 0 {
		return
	}
	d.caps |= CapVideoStream

	on := v.Switches[0].On
	if d.stream == nil && on && d.displays != nil {
		d.stream = d.displays.NewStream(d.name)
		if w, h, ok := d.initialStreamSize(); ok {
			d.stream.SetSize(w, h)
		}
	}
	if d.stream == nil {
		return
	}

	d.stream.OnHidden(d.StreamWindowHidden)
	d.stream.OnFrame(func(frame []byte) {
		d.emit(Event{Kind: EventVideoFrame, Frame: frame})
	})
	d.stream.Enable(on)
	d.emit(Event{Kind: EventVideoStream, On: on})
}

// initialStreamSize uses CCD_STREAM_FRAME when present. Otherwise the
// binned chip frame is used, but only for raw streams (a CCD1 vector).
func (d *Device) initialStreamSize() (w, h int, ok bool) {
	if w, h, ok := d.streamFrameSize(); ok {
		return w, h, true
	}
	if d.props.Blob(propPrimaryBlob) == nil {
		return 0, 0, false
	}
	return d.binnedFrameSize()
}

func (d *Device) streamFrameSize() (w, h int, ok bool) {
	v := d.props.Number(propStreamFrame)
	if v == nil {
		return 0, 0, false
	}
	nw, nh := v.Find(elemWidth), v.Find(elemHeight)
	if nw == nil || nh == nil {
		return 0, 0, false
	}
	return int(nw.Value), int(nh.Value), true
}

func (d *Device) binnedFrameSize() (w, h int, ok bool) {
	_, _, fw, fh, ok := d.primary.Frame()
	if !ok {
		return 0, 0, false
	}
	bx, by, _ := d.primary.Binning()
	if bx <= 0 {
		bx = 1
	}
	if by <= 0 {
		by = 1
	}
	return fw / bx, fh / by, true
}

func (d *Device) recordUpdated(v *indi.SwitchVector) {
	if switchOn(v, elemRecordOff) {
		d.emit(Event{Kind: EventVideoRecord, On: false})
		d.notice("Video Recording Stopped")
		return
	}
	d.emit(Event{Kind: EventVideoRecord, On: true})
	d.notice("Video Recording Started")
}

func (d *Device) connectionUpdated(v *indi.SwitchVector) {
	if d.stream == nil || !switchOn(v, elemDisconnect) {
		return
	}
	d.stream.Enable(false)
	d.emit(Event{Kind: EventVideoStream, On: false})
	d.stream.OnHidden(nil)
	d.stream.OnFrame(nil)
	d.stream.Close()
	d.stream = nil
}

// Text handlers.

func (d *Device) remoteFileUpdated(v *indi.TextVector) {
	if t := v.Find(elemFilePath); t != nil {
		d.emit(Event{Kind: EventRemoteFile, Path: t.Value})
	}
}
