package ccd

import (
	"sort"

	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// SetCoolerControl switches the cooler on or off.
func (d *Device) SetCoolerControl(enable bool) bool {
	if !d.HasCoolerControl() {
		return false
	}
	v := d.props.Switch(propCooler)
	if v == nil || v.Find(elemCoolerOn) == nil || v.Find(elemCoolerOff) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(elemCoolerOn).On = enable
	edited.Find(elemCoolerOff).On = !enable
	return d.commitSwitch(v, edited)
}

// IsCoolerOn reports whether the cooler is switched on.
func (d *Device) IsCoolerOn() bool {
	v := d.props.Switch(propCooler)
	return v != nil && len(v.Switches) > 0 && v.Switches[0].On
}

// Temperature returns the sensor temperature in °C.
func (d *Device) Temperature() (float64, bool) {
	if !d.HasCooler() {
		return 0, false
	}
	v := d.props.Number(propTemperature)
	if v == nil || len(v.Numbers) == 0 {
		return 0, false
	}
	return v.Numbers[0].Value, true
}

// SetTemperature requests a sensor temperature set point in °C.
func (d *Device) SetTemperature(celsius float64) bool {
	v := d.props.Number(propTemperature)
	if v == nil || v.Find(elemTemperature) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(elemTemperature).Value = celsius
	return d.commitNumber(v, edited)
}

// SetTransferFormat selects FITS or native payloads.
func (d *Device) SetTransferFormat(format TransferFormat) bool {
	if format == d.transferFormat {
		return true
	}
	v := d.props.Switch(propTransferFormat)
	fits, native := transferFormatSwitches.name(FormatFITS), transferFormatSwitches.name(FormatNative)
	if v == nil || v.Find(fits) == nil || v.Find(native) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(fits).On = format == FormatFITS
	edited.Find(native).On = format == FormatNative
	if !d.commitSwitch(v, edited) {
		return false
	}
	d.transferFormat = format
	return true
}

// SetTelescopeType associates the camera with the primary or guide scope.
func (d *Device) SetTelescopeType(t TelescopeType) bool {
	if t == d.telescope {
		return true
	}
	v := d.props.Switch(propTelescopeType)
	primary, guide := telescopeTypeSwitches.name(TelescopePrimary), telescopeTypeSwitches.name(TelescopeGuide)
	if v == nil || v.Find(primary) == nil || v.Find(guide) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(primary).On = t == TelescopePrimary
	edited.Find(guide).On = t == TelescopeGuide
	if !d.commitSwitch(v, edited) {
		return false
	}
	d.telescope = t
	return true
}

// SetVideoStreamEnabled starts or stops the video stream.
func (d *Device) SetVideoStreamEnabled(enable bool) bool {
	if !d.HasVideoStream() {
		return false
	}
	v := d.props.Switch(propVideoStream)
	if v == nil || len(v.Switches) < 2 {
		return false
	}
	if (enable && v.Switches[0].On) || (!enable && v.Switches[1].On) {
		return true
	}
	edited := v.Clone()
	edited.Switches[0].On = enable
	edited.Switches[1].On = !enable
	return d.commitSwitch(v, edited)
}

// IsStreamingEnabled reports whether the stream display is enabled.
func (d *Device) IsStreamingEnabled() bool {
	if !d.HasVideoStream() || d.stream == nil {
		return false
	}
	return d.stream.Enabled()
}

// StreamDisplay returns the live stream display, or nil.
func (d *Device) StreamDisplay() StreamDisplay { return d.stream }

// StreamWindowHidden turns every video stream off after the stream display
// was hidden, and disconnects the display callbacks.
func (d *Device) StreamWindowHidden() {
	if d.props.IsConnected() {
		for _, name := range []string{propVideoStream, propVideoStreamPlain, propVideoStreamAux} {
			v := d.props.Switch(name)
			if v == nil || len(v.Switches) < 2 {
				continue
			}
			edited := v.Clone()
			edited.Reset()
			edited.Switches[1].On = true
			edited.State = indi.StateIdle
			d.commitSwitch(v, edited)
		}
	}
	if d.stream != nil {
		d.stream.OnHidden(nil)
		d.stream.OnFrame(nil)
	}
}

// ResetStreamingFrame moves the stream frame to its full extent. It returns
// false when it already is.
func (d *Device) ResetStreamingFrame() bool {
	return d.resetFrame(d.props.Number(propStreamFrame))
}

// SetStreamingFrame sets the stream subframe. x and y are offsets relative
// to the current stream frame; all values are clamped to their bounds.
func (d *Device) SetStreamingFrame(x, y, w, h int) bool {
	v := d.props.Number(propStreamFrame)
	nx, ny, nw, nh, ok := frameFields(v)
	if !ok {
		return false
	}
	if nx.Value == float64(x) && ny.Value == float64(y) &&
		nw.Value == float64(w) && nh.Value == float64(h) {
		return true
	}

	edited := v.Clone()
	edited.Find(elemX).Value = clamp(float64(x)+nx.Value, nx.Min, nx.Max)
	edited.Find(elemY).Value = clamp(float64(y)+ny.Value, ny.Min, ny.Max)
	edited.Find(elemWidth).Value = clamp(float64(w), nw.Min, nw.Max)
	edited.Find(elemHeight).Value = clamp(float64(h), nh.Min, nh.Max)
	return d.commitNumber(v, edited)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetStreamLimits sets the stream buffer size (MB) and preview rate.
func (d *Device) SetStreamLimits(maxBufferSize, maxPreviewFPS int) bool {
	v := d.props.Number(propStreamFrame)
	if v == nil {
		return false
	}
	buf, fps := v.Find(elemLimitsBufferMax), v.Find(elemLimitsPreviewFPS)
	if buf == nil || fps == nil {
		return false
	}
	if buf.Value == float64(maxBufferSize) && fps.Value == float64(maxPreviewFPS) {
		return true
	}
	edited := v.Clone()
	edited.Find(elemLimitsBufferMax).Value = float64(maxBufferSize)
	edited.Find(elemLimitsPreviewFPS).Value = float64(maxPreviewFPS)
	return d.commitNumber(v, edited)
}

// StreamExposure returns the per-frame exposure of the video stream.
func (d *Device) StreamExposure() (float64, bool) {
	v := d.props.Number(propStreamExposure)
	if v == nil || len(v.Numbers) == 0 {
		return 0, false
	}
	return v.Numbers[0].Value, true
}

// SetStreamExposure sets the per-frame exposure of the video stream.
func (d *Device) SetStreamExposure(seconds float64) bool {
	return d.setFirstNumber(propStreamExposure, seconds)
}

// setFirstNumber sets the first element of a number vector.
func (d *Device) setFirstNumber(name string, value float64) bool {
	v := d.props.Number(name)
	if v == nil || len(v.Numbers) == 0 {
		return false
	}
	edited := v.Clone()
	edited.Numbers[0].Value = value
	return d.commitNumber(v, edited)
}

// selectSwitch turns on the named switch of a one-of-many vector. It is a
// no-op success when the switch is already on.
func (d *Device) selectSwitch(property, element string) bool {
	v := d.props.Switch(property)
	if v == nil {
		return false
	}
	s := v.Find(element)
	if s == nil {
		return false
	}
	if s.On {
		return true
	}
	edited := v.Clone()
	edited.Reset()
	edited.Find(element).On = true
	return d.commitSwitch(v, edited)
}

// StartRecording starts recording the video stream.
func (d *Device) StartRecording() bool {
	return d.selectSwitch(propRecordStream, elemRecordOn)
}

// StartDurationRecording records the video stream for a duration in
// seconds.
func (d *Device) StartDurationRecording(seconds float64) bool {
	return d.startLimitedRecording(elemRecordDuration, elemRecordDurationOn, seconds)
}

// StartFramesRecording records a number of video frames.
func (d *Device) StartFramesRecording(frames int) bool {
	return d.startLimitedRecording(elemRecordFrameTotal, elemRecordFrameOn, float64(frames))
}

func (d *Device) startLimitedRecording(limit, mode string, value float64) bool {
	opts := d.props.Number(propRecordOptions)
	if opts == nil || opts.Find(limit) == nil {
		return false
	}
	sv := d.props.Switch(propRecordStream)
	if sv == nil || sv.Find(mode) == nil {
		return false
	}
	if sv.Find(mode).On {
		return true
	}

	edited := opts.Clone()
	edited.Find(limit).Value = value
	if !d.commitNumber(opts, edited) {
		return false
	}
	return d.selectSwitch(propRecordStream, mode)
}

// StopRecording stops recording the video stream.
func (d *Device) StopRecording() bool {
	return d.selectSwitch(propRecordStream, elemRecordOff)
}

// RecordFile returns the recording file name template and directory.
func (d *Device) RecordFile() (filename, directory string, ok bool) {
	v := d.props.Text(propRecordFile)
	if v == nil {
		return "", "", false
	}
	name, dir := v.Find(elemRecordFileName), v.Find(elemRecordFileDir)
	if name == nil || dir == nil {
		return "", "", false
	}
	return name.Value, dir.Value, true
}

// SetRecordFile sets the recording file name template and directory.
func (d *Device) SetRecordFile(filename, directory string) bool {
	v := d.props.Text(propRecordFile)
	if v == nil || v.Find(elemRecordFileName) == nil || v.Find(elemRecordFileDir) == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(elemRecordFileName).Value = filename
	edited.Find(elemRecordFileDir).Value = directory
	return d.commitText(v, edited)
}

// SetFITSHeader sets FITS header keywords the driver writes. Keys the
// driver does not know are skipped.
func (d *Device) SetFITSHeader(values map[string]string) bool {
	v := d.props.Text(propFITSHeader)
	if v == nil {
		return false
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	edited := v.Clone()
	for _, k := range keys {
		if t := edited.Find(k); t != nil {
			t.Value = values[k]
		}
	}
	return d.commitText(v, edited)
}

func (d *Device) resolve(b *fieldBinding) (*indi.NumberVector, *indi.Number) {
	if b == nil {
		return nil, nil
	}
	v := d.props.Number(b.vector)
	if v == nil {
		return nil, nil
	}
	return v, v.Find(b.field)
}

func (d *Device) setBound(b *fieldBinding, value float64) bool {
	v, n := d.resolve(b)
	if n == nil {
		return false
	}
	edited := v.Clone()
	edited.Find(n.Name).Value = value
	return d.commitNumber(v, edited)
}

func (d *Device) boundValue(b *fieldBinding) (float64, bool) {
	if _, n := d.resolve(b); n != nil {
		return n.Value, true
	}
	return 0, false
}

func (d *Device) boundLimits(b *fieldBinding) (minimum, maximum, step float64, ok bool) {
	if _, n := d.resolve(b); n != nil {
		return n.Min, n.Max, n.Step, true
	}
	return 0, 0, 0, false
}

// SetGain sets the sensor gain.
func (d *Device) SetGain(value float64) bool { return d.setBound(d.gain, value) }

// Gain returns the sensor gain.
func (d *Device) Gain() (float64, bool) { return d.boundValue(d.gain) }

// GainMinMaxStep returns the gain limits.
func (d *Device) GainMinMaxStep() (minimum, maximum, step float64, ok bool) {
	return d.boundLimits(d.gain)
}

// GainPerm returns the permission of the gain property.
func (d *Device) GainPerm() (indi.Perm, bool) {
	if d.gain == nil {
		return "", false
	}
	return d.gain.perm, true
}

// SetOffset sets the sensor offset.
func (d *Device) SetOffset(value float64) bool { return d.setBound(d.offset, value) }

// Offset returns the sensor offset.
func (d *Device) Offset() (float64, bool) { return d.boundValue(d.offset) }

// OffsetMinMaxStep returns the offset limits.
func (d *Device) OffsetMinMaxStep() (minimum, maximum, step float64, ok bool) {
	return d.boundLimits(d.offset)
}

// OffsetPerm returns the permission of the offset property.
func (d *Device) OffsetPerm() (indi.Perm, bool) {
	if d.offset == nil {
		return "", false
	}
	return d.offset.perm, true
}

// SetExposureLoopingEnabled turns exposure looping on or off. The local
// flag changes immediately.
func (d *Device) SetExposureLoopingEnabled(enable bool) bool {
	d.looping = enable
	v := d.props.Switch(propExposureLoop)
	if v == nil || len(v.Switches) < 2 {
		return false
	}
	edited := v.Clone()
	edited.Switches[0].On = enable
	edited.Switches[1].On = !enable
	return d.commitSwitch(v, edited)
}

// SetExposureLoopCount sets how many exposures a loop takes.
func (d *Device) SetExposureLoopCount(count int) bool {
	return d.setFirstNumber(propExposureLoopCount, float64(count))
}

// UploadMode returns where the driver stores images. Drivers without
// UPLOAD_MODE upload to the client.
func (d *Device) UploadMode() UploadMode {
	v := d.props.Switch(propUploadMode)
	if v == nil {
		d.logger.Warn("driver has no UPLOAD_MODE", "device", d.name)
		return UploadClient
	}
	if m, ok := uploadModeSwitches.selected(v); ok {
		return m
	}
	return UploadClient
}

// SetUploadMode selects where the driver stores images.
func (d *Device) SetUploadMode(mode UploadMode) bool {
	name := uploadModeSwitches.name(mode)
	if name == "" {
		return false
	}
	return d.selectSwitch(propUploadMode, name)
}

// UpdateUploadSettings sends the remote directory and the sequence prefix
// for images stored by the driver. An empty remoteDir leaves the directory
// unchanged.
func (d *Device) UpdateUploadSettings(remoteDir string) bool {
	v := d.props.Text(propUploadSettings)
	if v == nil {
		return false
	}
	prefix := d.seqPrefix
	if prefix != "" {
		prefix += "_"
	}

	edited := v.Clone()
	if t := edited.Find(elemUploadDir); t != nil && remoteDir != "" {
		t.Value = remoteDir
	}
	if t := edited.Find(elemUploadPrefix); t != nil {
		t.Value = prefix + "XXX"
	}
	return d.commitText(v, edited)
}

// IsBlobEnabled reports whether BLOB delivery is enabled for the camera.
func (d *Device) IsBlobEnabled() bool {
	return d.props.BlobEnabled(propPrimaryBlob)
}

// SetBlobEnabled enables or disables BLOB delivery for a property, or for
// the whole device when property is empty.
func (d *Device) SetBlobEnabled(enable bool, property string) bool {
	mode := indi.BlobNever
	if enable {
		mode = indi.BlobAlso
	}
	if err := d.props.SetBlobMode(mode, property); err != nil {
		d.logger.Warn("enableBLOB failed", "device", d.name, "property", property, "error", err)
		return false
	}
	return true
}

// SequencePrefix returns the file name prefix of batch captures.
func (d *Device) SequencePrefix() string { return d.seqPrefix }

// NextSequenceID returns the sequence number of the next batch capture.
func (d *Device) NextSequenceID() int { return d.nextSeqID }

// SetSequence sets the file name prefix and the next sequence number.
func (d *Device) SetSequence(prefix string, next int) {
	d.seqPrefix = prefix
	d.nextSeqID = next
}

// CaptureDirectory returns the directory batch captures are written to.
func (d *Device) CaptureDirectory() string {
	if d.captureDir != "" {
		return d.captureDir
	}
	return d.opts.DefaultCaptureDirectory
}

// SetCaptureDirectory overrides the configured capture directory. An empty
// value restores the default.
func (d *Device) SetCaptureDirectory(dir string) { d.captureDir = dir }

// SetFilter sets the filter name written to the FILTER keyword of the next
// FITS capture.
func (d *Device) SetFilter(filter string) { d.filter = filter }

// Filter returns the pending filter name.
func (d *Device) Filter() string { return d.filter }
