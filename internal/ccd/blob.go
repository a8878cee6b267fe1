package ccd

import (
	"path/filepath"
	"strings"

	"github.com/nerrad567/gray-logic-indi/internal/fits"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// blobKind is the classification of an arriving payload.
type blobKind int

const (
	blobOther blobKind = iota
	blobStream
	blobImage
	blobFITS
	blobRaw
)

func (k blobKind) String() string {
	switch k {
	case blobStream:
		return "stream"
	case blobImage:
		return "image"
	case blobFITS:
		return "fits"
	case blobRaw:
		return "raw"
	default:
		return "other"
	}
}

// classify decides how a payload with the given lower-case format is
// handled. Stream frames only count as such while a stream display exists.
func (d *Device) classify(format string) blobKind {
	if strings.Contains(format, "stream") && d.stream != nil {
		return blobStream
	}
	short := strings.TrimPrefix(format, ".")
	switch {
	case imaging.IsRaster(short):
		return blobImage
	case strings.Contains(format, "fits"):
		return blobFITS
	case imaging.IsRaw(short):
		return blobRaw
	}
	return blobOther
}

// BlobUpdated is called when the driver delivers a payload. b.Data is only
// valid for the duration of the call.
func (d *Device) BlobUpdated(b *indi.Blob) {
	if b == nil || b.Size == 0 || len(b.Data) == 0 {
		return
	}
	// Write-only vectors echo our own uploads.
	if b.Vector != nil && b.Vector.Perm == indi.PermWO {
		return
	}

	format := strings.ToLower(b.Format)
	kind := d.classify(format)
	switch kind {
	case blobStream:
		d.processStream(b)
		return
	case blobOther:
		d.emit(Event{Kind: EventBlobUpdated, Blob: b})
		return
	}

	chip := d.primary
	if b.Name == elemGuideBlob {
		if d.guide == nil {
			d.logger.Warn("guide payload without guide head", "device", d.name)
			return
		}
		chip = d.guide
	}
	d.logger.Debug("payload received",
		"device", d.name, "chip", chip.typ.String(), "mode", chip.mode.String(),
		"kind", kind.String(), "bytes", len(b.Data))

	short := strings.TrimPrefix(format, ".")
	filename, ok := d.materialize(chip, b, format, kind)
	if !ok {
		d.emit(Event{Kind: EventBlobUpdated})
		return
	}

	if chip.mode == ModeNormal && chip.batch {
		d.emit(Event{Kind: EventFileSaved, Chip: chip.typ, Path: filename, Format: strings.ToUpper(short)})
		d.logger.Info("capture saved", "device", d.name, "format", strings.ToUpper(short), "file", filename)
	}
	if d.received.Allow() {
		d.notice("Image file is received")
	}

	if (kind == blobImage || kind == blobRaw) && d.opts.UseExternalImageViewer {
		d.announceExternal(chip, b, filename)
		return
	}

	var data *imaging.Data
	if kind == blobImage && d.opts.AutoConvertImageToFITS {
		if data = d.decode(chip, b, short); data == nil {
			return
		}
		d.convertToFITS(filename, data)
	}

	// Batch frames nobody wants to look at are not decoded.
	if chip.mode.sharedViewer() && chip.batch && !d.opts.UseFITSViewer && !d.opts.UseSummaryPreview {
		d.emit(Event{Kind: EventBlobUpdated, Blob: b})
		d.emit(Event{Kind: EventNewImage})
		return
	}

	if data == nil {
		if data = d.decode(chip, b, short); data == nil {
			return
		}
	}
	d.handleImage(chip, filename, b, data)
}

// MediaFrame delivers a frame from the websocket media channel as a CCD1
// payload.
func (d *Device) MediaFrame(data []byte, extension string) {
	bv := d.props.Blob(propPrimaryBlob)
	if bv == nil || len(bv.Blobs) == 0 {
		return
	}
	b := bv.Blobs[0]
	b.Data = data
	b.Size = len(data)
	b.Format = extension
	b.Vector = bv
	d.BlobUpdated(&b)
}

// materialize names the capture file and, in batch mode, writes it. Preview
// payloads get a fixed name in the temp directory and are not written.
func (d *Device) materialize(chip *Chip, b *indi.Blob, format string, kind blobKind) (string, bool) {
	if !chip.batch {
		return filepath.Join(d.opts.TempDirectory, "image"+format), true
	}

	filename, err := d.generateFilename(format, true)
	if err != nil {
		d.logger.Error("cannot create capture file", "device", d.name, "error", err)
		return "", false
	}
	if err := d.writeImageFile(filename, b, kind == blobFITS, chip.typ); err != nil {
		d.logger.Error("cannot write capture file", "device", d.name, "file", filename, "error", err)
		return "", false
	}
	d.nextSeqID++
	return filename, true
}

// writeImageFile hands FITS payloads to the writer goroutine together with
// the pending filter name, which is then cleared. Other payloads are
// written before returning.
func (d *Device) writeImageFile(filename string, b *indi.Blob, isFITS bool, chip ChipType) error {
	format := strings.TrimPrefix(strings.ToLower(b.Format), ".")
	if isFITS {
		job := writeJob{filename: filename, filter: d.filter, chip: chip, format: format}
		d.filter = ""
		return d.writer.Submit(job, b.Data)
	}

	if err := d.writeFile(filename, b.Data); err != nil {
		return err
	}
	d.fileWritten(writeJob{filename: filename, data: b.Data, chip: chip, format: format}, nil)
	return nil
}

// decode decodes a payload. Failure is reported like an exposure alert and
// yields nil.
func (d *Device) decode(chip *Chip, b *indi.Blob, format string) *imaging.Data {
	data, err := d.decoder.Decode(b.Data, format)
	if err != nil {
		d.logger.Error("cannot decode payload", "device", d.name, "chip", chip.typ.String(), "format", format, "error", err)
		d.exposureAlert(chip)
		return nil
	}
	return data
}

// exposureAlert reports a capture that produced nothing usable.
func (d *Device) exposureAlert(chip *Chip) {
	d.emit(Event{Kind: EventExposure, Chip: chip.typ, Value: 0, State: indi.StateAlert})
}

// announceExternal hands raster and raw captures to an external viewer by
// path. Previews are written to the temp file first.
func (d *Device) announceExternal(chip *Chip, b *indi.Blob, filename string) {
	if !chip.batch {
		if err := d.writeFile(filename, b.Data); err != nil {
			d.logger.Error("cannot write preview file", "device", d.name, "file", filename, "error", err)
			d.emit(Event{Kind: EventBlobUpdated})
			return
		}
	}
	d.emit(Event{Kind: EventPreviewGenerated, Chip: chip.typ, Path: filename})
	d.emit(Event{Kind: EventBlobUpdated, Blob: b})
}

// convertToFITS writes a FITS copy of a raster capture next to it.
func (d *Device) convertToFITS(filename string, data *imaging.Data) {
	if data.Image == nil {
		return
	}
	out := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".fits"
	if err := fits.EncodeFile(out, data.Image); err != nil {
		d.logger.Warn("FITS conversion failed", "device", d.name, "file", out, "error", err)
		return
	}
	d.emit(Event{Kind: EventPreviewGenerated, Path: out})
}

// setupViewer creates the shared viewer and forgets tab ids when their
// tabs are closed.
func (d *Device) setupViewer() {
	d.normalTab, d.calibrationTab = -1, -1
	d.viewer = d.displays.NewViewer(d.name)
	if d.viewer == nil {
		return
	}
	d.viewer.OnClosed(func(tab int) {
		switch tab {
		case d.normalTab:
			d.normalTab = -1
		case d.calibrationTab:
			d.calibrationTab = -1
		}
	})
}

// handleImage tags decoded data with its origin and routes it by capture
// mode.
func (d *Device) handleImage(chip *Chip, filename string, b *indi.Blob, data *imaging.Data) {
	mode := chip.mode
	useViewer := d.opts.UseFITSViewer || !chip.batch

	if useViewer && d.viewer == nil && d.displays != nil && mode.sharedViewer() {
		d.setupViewer()
	}

	data.Device = d.name
	if b.Vector != nil {
		data.Vector = b.Vector.Name
	}
	data.Element = b.Name
	data.Chip = chip.typ.String()
	data.Mode = mode.String()
	data.Filename = filename

	if !mode.sharedViewer() {
		d.loadImageInView(chip, b, data)
		return
	}

	if useViewer && d.viewer != nil {
		tabID := &d.normalTab
		if mode == ModeCalibrate {
			tabID = &d.calibrationTab
		}

		var (
			tab int
			err error
		)
		if *tabID == -1 || !d.opts.SinglePreviewTab {
			title := ""
			if !chip.batch && d.opts.SinglePreviewTab {
				title = "Preview"
				if d.opts.SingleWindowForAllDevices {
					title = d.name + " Preview"
				}
			}
			tab, err = d.viewer.Load(data, mode, chip.filter, title)
		} else {
			tab, err = d.viewer.Update(data, *tabID, chip.filter)
		}
		if err != nil {
			d.logger.Error("cannot display image", "device", d.name, "error", err)
			d.exposureAlert(chip)
			return
		}

		*tabID = tab
		if view := d.viewer.View(tab); view != nil {
			chip.SetImageView(view, mode)
		}
		if d.opts.FocusViewerOnNewImage {
			d.viewer.Raise()
		}
	}

	chip.image = data
	d.emit(Event{Kind: EventBlobUpdated, Blob: b})
	d.emit(Event{Kind: EventNewImage, Chip: chip.typ, Image: data})
}

// loadImageInView shows focus, guide and align frames in the chip's view.
// Without a view nothing is emitted.
func (d *Device) loadImageInView(chip *Chip, b *indi.Blob, data *imaging.Data) {
	view := chip.ImageView(chip.mode)
	if view == nil {
		return
	}
	view.SetFilter(chip.filter)
	if err := view.Load(data); err != nil {
		d.logger.Error("cannot display image", "device", d.name, "mode", chip.mode.String(), "error", err)
		d.exposureAlert(chip)
		return
	}

	chip.image = data
	d.emit(Event{Kind: EventBlobUpdated, Blob: b})
	d.emit(Event{Kind: EventNewImage, Chip: chip.typ, Image: data})
}

// processStream pushes a live frame into the stream display, resizing it
// from CCD_STREAM_FRAME or the binned chip frame.
func (d *Device) processStream(b *indi.Blob) {
	if d.stream == nil || !d.stream.Enabled() {
		return
	}
	w, h, ok := d.streamFrameSize()
	if !ok {
		w, h, ok = d.binnedFrameSize()
	}
	if ok {
		d.stream.SetSize(w, h)
	}
	d.stream.Show()
	d.stream.NewFrame(b.Data, b.Format)
}
