package ccd

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// Property names of the INDI CCD standard.
const (
	propCCDFrame           = "CCD_FRAME"
	propGuiderFrame        = "GUIDER_FRAME"
	propCCDExposure        = "CCD_EXPOSURE"
	propGuiderExposure     = "GUIDER_EXPOSURE"
	propCCDAbort           = "CCD_ABORT_EXPOSURE"
	propGuiderAbort        = "GUIDER_ABORT_EXPOSURE"
	propCCDBinning         = "CCD_BINNING"
	propGuiderBinning      = "GUIDER_BINNING"
	propCCDFrameType       = "CCD_FRAME_TYPE"
	propGuiderFrameType    = "GUIDER_FRAME_TYPE"
	propCCDInfo            = "CCD_INFO"
	propGuiderInfo         = "GUIDER_INFO"
	propCCDRapidGuide      = "CCD_RAPID_GUIDE"
	propGuiderRapidGuide   = "GUIDER_RAPID_GUIDE"
	propCCDRapidSetup      = "CCD_RAPID_GUIDE_SETUP"
	propGuiderRapidSetup   = "GUIDER_RAPID_GUIDE_SETUP"
	propCCDRapidData       = "CCD_RAPID_GUIDE_DATA"
	propGuiderRapidData    = "GUIDER_RAPID_GUIDE_DATA"
	propISO                = "CCD_ISO"
	propCFA                = "CCD_CFA"
	propTemperature        = "CCD_TEMPERATURE"
	propCooler             = "CCD_COOLER"
	propVideoStream        = "CCD_VIDEO_STREAM"
	propVideoStreamPlain   = "VIDEO_STREAM"
	propVideoStreamAux     = "AUX_VIDEO_STREAM"
	propStreamFrame        = "CCD_STREAM_FRAME"
	propStreamExposure     = "STREAMING_EXPOSURE"
	propTransferFormat     = "CCD_TRANSFER_FORMAT"
	propExposurePresets    = "CCD_EXPOSURE_PRESETS"
	propExposureLoop       = "CCD_EXPOSURE_LOOP"
	propExposureLoopCount  = "CCD_EXPOSURE_LOOP_COUNT"
	propTelescopeType      = "TELESCOPE_TYPE"
	propFPS                = "FPS"
	propRecordStream       = "RECORD_STREAM"
	propRecordOptions      = "RECORD_OPTIONS"
	propRecordFile         = "RECORD_FILE"
	propConnection         = "CONNECTION"
	propFilePath           = "CCD_FILE_PATH"
	propUploadMode         = "UPLOAD_MODE"
	propUploadSettings     = "UPLOAD_SETTINGS"
	propFITSHeader         = "FITS_HEADER"
	propWebsocketSettings  = "CCD_WEBSOCKET_SETTINGS"
	propPrimaryBlob        = "CCD1"
	videoStreamSuffix      = "VIDEO_STREAM"
	elemGuideBlob          = "CCD2"
	elemX                  = "X"
	elemY                  = "Y"
	elemWidth              = "WIDTH"
	elemHeight             = "HEIGHT"
	elemHorBin             = "HOR_BIN"
	elemVerBin             = "VER_BIN"
	elemAbort              = "ABORT"
	elemTemperature        = "CCD_TEMPERATURE_VALUE"
	elemCoolerOn           = "COOLER_ON"
	elemCoolerOff          = "COOLER_OFF"
	elemLoopOn             = "LOOP_ON"
	elemRecordOn           = "RECORD_ON"
	elemRecordOff          = "RECORD_OFF"
	elemRecordDurationOn   = "RECORD_DURATION_ON"
	elemRecordFrameOn      = "RECORD_FRAME_ON"
	elemRecordDuration     = "RECORD_DURATION"
	elemRecordFrameTotal   = "RECORD_FRAME_TOTAL"
	elemRecordFileName     = "RECORD_FILE_NAME"
	elemRecordFileDir      = "RECORD_FILE_DIR"
	elemDisconnect         = "DISCONNECT"
	elemFilePath           = "FILE_PATH"
	elemUploadDir          = "UPLOAD_DIR"
	elemUploadPrefix       = "UPLOAD_PREFIX"
	elemGuideStarX         = "GUIDESTAR_X"
	elemGuideStarY         = "GUIDESTAR_Y"
	elemGuideStarFit       = "GUIDESTAR_FIT"
	elemRapidEnable        = "ENABLE"
	elemRapidAutoLoop      = "AUTO_LOOP"
	elemRapidSendImage     = "SEND_IMAGE"
	elemRapidShowMarker    = "SHOW_MARKER"
	elemLimitsBufferMax    = "LIMITS_BUFFER_MAX"
	elemLimitsPreviewFPS   = "LIMITS_PREVIEW_FPS"
	elemExposureValueCCD   = "CCD_EXPOSURE_VALUE"
	elemExposureValueGuide = "GUIDER_EXPOSURE_VALUE"
)

// chipProperties names the properties backing one sensor head.
type chipProperties struct {
	frame         string
	exposure      string
	exposureValue string
	abort         string
	binning       string
	frameType     string
	info          string
	rapidGuide    string
	rapidSetup    string
	rapidData     string
}

var chipPropertyNames = map[ChipType]chipProperties{
	ChipPrimary: {
		frame:         propCCDFrame,
		exposure:      propCCDExposure,
		exposureValue: elemExposureValueCCD,
		abort:         propCCDAbort,
		binning:       propCCDBinning,
		frameType:     propCCDFrameType,
		info:          propCCDInfo,
		rapidGuide:    propCCDRapidGuide,
		rapidSetup:    propCCDRapidSetup,
		rapidData:     propCCDRapidData,
	},
	ChipGuide: {
		frame:         propGuiderFrame,
		exposure:      propGuiderExposure,
		exposureValue: elemExposureValueGuide,
		abort:         propGuiderAbort,
		binning:       propGuiderBinning,
		frameType:     propGuiderFrameType,
		info:          propGuiderInfo,
		rapidGuide:    propGuiderRapidGuide,
		rapidSetup:    propGuiderRapidSetup,
		rapidData:     propGuiderRapidData,
	},
}

// enumTable maps enum values to protocol or display names and back.
// The same table serves the read path (switch name -> value) and the write
// path (value -> switch name) so both agree on naming.
type enumTable[T comparable] struct {
	names  map[T]string
	values map[string]T
}

func newEnumTable[T comparable](names map[T]string) enumTable[T] {
	values := make(map[string]T, len(names))
	for v, n := range names {
		values[n] = v
	}
	return enumTable[T]{names: names, values: values}
}

func (t enumTable[T]) name(v T) string {
	return t.names[v]
}

func (t enumTable[T]) value(name string) (T, bool) {
	v, ok := t.values[name]
	return v, ok
}

// selected returns the value of the first on switch that the table knows.
func (t enumTable[T]) selected(sv *indi.SwitchVector) (T, bool) {
	var zero T
	if sv == nil {
		return zero, false
	}
	on := sv.OnSwitch()
	if on == nil {
		return zero, false
	}
	return t.value(on.Name)
}

// ChipType identifies a sensor head.
type ChipType int

// Sensor heads.
const (
	ChipPrimary ChipType = iota
	ChipGuide
)

var chipTypeNames = newEnumTable(map[ChipType]string{
	ChipPrimary: "primary",
	ChipGuide:   "guide",
})

func (c ChipType) String() string {
	if n := chipTypeNames.name(c); n != "" {
		return n
	}
	return fmt.Sprintf("ChipType(%d)", int(c))
}

// ParseChipType parses "primary" or "guide".
func ParseChipType(s string) (ChipType, error) {
	if c, ok := chipTypeNames.value(strings.ToLower(s)); ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: chip %q", ErrInvalidArgument, s)
}

// CaptureMode is the intended use of the next image, which decides where
// it is displayed.
type CaptureMode int

// Capture modes.
const (
	ModeNormal CaptureMode = iota
	ModeFocus
	ModeGuide
	ModeCalibrate
	ModeAlign
)

var captureModeNames = newEnumTable(map[CaptureMode]string{
	ModeNormal:    "normal",
	ModeFocus:     "focus",
	ModeGuide:     "guide",
	ModeCalibrate: "calibrate",
	ModeAlign:     "align",
})

func (m CaptureMode) String() string {
	if n := captureModeNames.name(m); n != "" {
		return n
	}
	return fmt.Sprintf("CaptureMode(%d)", int(m))
}

// ParseCaptureMode parses a capture mode name.
func ParseCaptureMode(s string) (CaptureMode, error) {
	if m, ok := captureModeNames.value(strings.ToLower(s)); ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: capture mode %q", ErrInvalidArgument, s)
}

// sharedViewer reports whether images of this mode go to the shared
// multi-tab viewer rather than a chip view.
func (m CaptureMode) sharedViewer() bool {
	return m == ModeNormal || m == ModeCalibrate
}

// FrameType is the kind of exposure taken.
type FrameType int

// Frame types.
const (
	FrameLight FrameType = iota
	FrameDark
	FrameBias
	FrameFlat
)

var frameTypeSwitches = newEnumTable(map[FrameType]string{
	FrameLight: "FRAME_LIGHT",
	FrameDark:  "FRAME_DARK",
	FrameBias:  "FRAME_BIAS",
	FrameFlat:  "FRAME_FLAT",
})

func (f FrameType) String() string {
	if n := frameTypeSwitches.name(f); n != "" {
		return strings.TrimPrefix(n, "FRAME_")
	}
	return fmt.Sprintf("FrameType(%d)", int(f))
}

// ParseFrameType accepts "Light", "light", "FRAME_LIGHT" and so on.
func ParseFrameType(name string) (FrameType, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(key, "FRAME_") {
		key = "FRAME_" + key
	}
	return frameTypeSwitches.value(key)
}

// BinningType is a square binning preset.
type BinningType int

// Binning presets.
const (
	Bin1x1 BinningType = iota + 1
	Bin2x2
	Bin3x3
	Bin4x4
)

// factor returns the binning factor of the preset.
func (b BinningType) factor() int {
	return int(b)
}

// TransferFormat is the payload format the driver sends.
type TransferFormat int

// Transfer formats.
const (
	FormatFITS TransferFormat = iota
	FormatNative
)

var transferFormatSwitches = newEnumTable(map[TransferFormat]string{
	FormatFITS:   "FORMAT_FITS",
	FormatNative: "FORMAT_NATIVE",
})

func (f TransferFormat) String() string {
	switch f {
	case FormatFITS:
		return "fits"
	case FormatNative:
		return "native"
	default:
		return fmt.Sprintf("TransferFormat(%d)", int(f))
	}
}

// ParseTransferFormat parses "fits" or "native".
func ParseTransferFormat(s string) (TransferFormat, error) {
	switch strings.ToLower(s) {
	case "fits":
		return FormatFITS, nil
	case "native":
		return FormatNative, nil
	}
	return 0, fmt.Errorf("%w: transfer format %q", ErrInvalidArgument, s)
}

// UploadMode is where the driver stores captured images.
type UploadMode int

// Upload modes.
const (
	UploadClient UploadMode = iota
	UploadLocal
	UploadBoth
)

var uploadModeSwitches = newEnumTable(map[UploadMode]string{
	UploadClient: "UPLOAD_CLIENT",
	UploadLocal:  "UPLOAD_LOCAL",
	UploadBoth:   "UPLOAD_BOTH",
})

func (u UploadMode) String() string {
	if n := uploadModeSwitches.name(u); n != "" {
		return strings.ToLower(strings.TrimPrefix(n, "UPLOAD_"))
	}
	return fmt.Sprintf("UploadMode(%d)", int(u))
}

// ParseUploadMode parses "client", "local" or "both".
func ParseUploadMode(s string) (UploadMode, error) {
	if u, ok := uploadModeSwitches.value("UPLOAD_" + strings.ToUpper(s)); ok {
		return u, nil
	}
	return 0, fmt.Errorf("%w: upload mode %q", ErrInvalidArgument, s)
}

// TelescopeType is the optical train the camera is attached to.
type TelescopeType int

// Telescope associations.
const (
	TelescopePrimary TelescopeType = iota
	TelescopeGuide
)

var telescopeTypeSwitches = newEnumTable(map[TelescopeType]string{
	TelescopePrimary: "TELESCOPE_PRIMARY",
	TelescopeGuide:   "TELESCOPE_GUIDE",
})

func (t TelescopeType) String() string {
	if t == TelescopeGuide {
		return "guide"
	}
	return "primary"
}
