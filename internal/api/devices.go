package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

// DeviceSummary is one entry of the device list.
type DeviceSummary struct {
	Name  string               `json:"name"`
	State *camera.StateMessage `json:"state,omitempty"`
}

// DeviceInfo is a snapshot of a camera.
type DeviceInfo struct {
	Name             string               `json:"name"`
	Connected        bool                 `json:"connected"`
	Capabilities     []string             `json:"capabilities"`
	Temperature      *float64             `json:"temperature,omitempty"`
	CoolerOn         bool                 `json:"cooler_on"`
	TransferFormat   string               `json:"transfer_format"`
	Telescope        string               `json:"telescope"`
	UploadMode       string               `json:"upload_mode"`
	Looping          bool                 `json:"looping"`
	Streaming        bool                 `json:"streaming"`
	Gain             *float64             `json:"gain,omitempty"`
	Offset           *float64             `json:"offset,omitempty"`
	SequencePrefix   string               `json:"sequence_prefix"`
	NextSequenceID   int                  `json:"next_sequence_id"`
	CaptureDirectory string               `json:"capture_directory"`
	Filter           string               `json:"filter,omitempty"`
	Presets          map[string]float64   `json:"exposure_presets,omitempty"`
	Chips            []ChipInfo           `json:"chips"`
	State            *camera.StateMessage `json:"state,omitempty"`
}

// ChipInfo is a snapshot of one sensor head.
type ChipInfo struct {
	Type        string     `json:"type"`
	CanBin      bool       `json:"can_bin"`
	CanSubframe bool       `json:"can_subframe"`
	CanAbort    bool       `json:"can_abort"`
	Capturing   bool       `json:"capturing"`
	Frame       *FrameInfo `json:"frame,omitempty"`
	BinX        int        `json:"bin_x"`
	BinY        int        `json:"bin_y"`
	FrameType   string     `json:"frame_type"`
	FrameLabels []string   `json:"frame_labels,omitempty"`
	ISOList     []string   `json:"iso_list,omitempty"`
	ISOIndex    int        `json:"iso_index"`
	BatchMode   bool       `json:"batch_mode"`
	CaptureMode string     `json:"capture_mode"`
	Filter      string     `json:"filter,omitempty"`
}

// FrameInfo is the current subframe.
type FrameInfo struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

var capabilityNames = []struct {
	flag ccd.Capability
	name string
}{
	{ccd.CapCooler, "cooler"},
	{ccd.CapCoolerControl, "cooler_control"},
	{ccd.CapCanCool, "can_cool"},
	{ccd.CapVideoStream, "video_stream"},
	{ccd.CapGuideHead, "guide_head"},
}

// snapshotDevice reads a camera. It runs on the dispatch goroutine.
func snapshotDevice(dev *ccd.Device) DeviceInfo {
	info := DeviceInfo{
		Name:             dev.Name(),
		Connected:        dev.IsConnected(),
		Capabilities:     []string{},
		CoolerOn:         dev.IsCoolerOn(),
		TransferFormat:   dev.TransferFormat().String(),
		Telescope:        dev.TelescopeType().String(),
		UploadMode:       dev.UploadMode().String(),
		Looping:          dev.IsLooping(),
		Streaming:        dev.IsStreamingEnabled(),
		SequencePrefix:   dev.SequencePrefix(),
		NextSequenceID:   dev.NextSequenceID(),
		CaptureDirectory: dev.CaptureDirectory(),
		Filter:           dev.Filter(),
	}
	caps := dev.Capabilities()
	for _, c := range capabilityNames {
		if caps.Has(c.flag) {
			info.Capabilities = append(info.Capabilities, c.name)
		}
	}
	if t, ok := dev.Temperature(); ok {
		info.Temperature = &t
	}
	if g, ok := dev.Gain(); ok {
		info.Gain = &g
	}
	if o, ok := dev.Offset(); ok {
		info.Offset = &o
	}
	if presets := dev.ExposurePresets(); len(presets) > 0 {
		info.Presets = presets
	}

	for _, t := range []ccd.ChipType{ccd.ChipPrimary, ccd.ChipGuide} {
		if chip := dev.Chip(t); chip != nil {
			info.Chips = append(info.Chips, snapshotChip(chip))
		}
	}
	return info
}

func snapshotChip(c *ccd.Chip) ChipInfo {
	info := ChipInfo{
		Type:        c.Type().String(),
		CanBin:      c.CanBin(),
		CanSubframe: c.CanSubframe(),
		CanAbort:    c.CanAbort(),
		Capturing:   c.IsCapturing(),
		FrameType:   c.FrameType().String(),
		FrameLabels: c.FrameLabels(),
		ISOList:     c.ISOList(),
		ISOIndex:    c.ISOIndex(),
		BatchMode:   c.IsBatchMode(),
		CaptureMode: c.CaptureMode().String(),
		Filter:      c.CaptureFilter(),
	}
	if x, y, w, h, ok := c.Frame(); ok {
		info.Frame = &FrameInfo{X: x, Y: y, Width: w, Height: h}
	}
	info.BinX, info.BinY, _ = c.Binning()
	return info
}

// resolveDevice maps a path parameter to a camera name. Both the INDI
// name and its topic form ("ccd-simulator") are accepted.
func (s *Server) resolveDevice(r *http.Request) string {
	param := chi.URLParam(r, "device")
	names := s.cameras.Names()
	for _, name := range names {
		if name == param {
			return name
		}
	}
	for _, name := range names {
		if mqtt.TopicSegment(name) == param {
			return name
		}
	}
	return param
}

// handleListDevices returns every known camera with its last state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	names := s.cameras.Names()
	devices := make([]DeviceSummary, 0, len(names))
	for _, name := range names {
		d := DeviceSummary{Name: name}
		if state, ok := s.cameras.State(name); ok {
			d.State = &state
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a snapshot of one camera.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := s.resolveDevice(r)

	var info DeviceInfo
	err := s.cameras.Inspect(r.Context(), name, func(dev *ccd.Device) error {
		info = snapshotDevice(dev)
		return nil
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	if state, ok := s.cameras.State(name); ok {
		info.State = &state
	}
	writeJSON(w, http.StatusOK, info)
}

// deviceCommand returns a handler running a device-level command with the
// request body as parameters.
func (s *Server) deviceCommand(command string) http.HandlerFunc {
	return s.commandHandler(command, false)
}

// chipCommand returns a handler running a command on the {chip} chip.
func (s *Server) chipCommand(command string) http.HandlerFunc {
	return s.commandHandler(command, true)
}

func (s *Server) commandHandler(command string, chip bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := decodeParameters(r.Body)
		if err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}

		cmd := camera.CommandMessage{
			ID:         requestID(r.Context()),
			Timestamp:  s.now().UTC(),
			Device:     s.resolveDevice(r),
			Command:    command,
			Parameters: params,
			Source:     "api",
		}
		if chip {
			cmd.Chip = chi.URLParam(r, "chip")
		}

		if err := s.cameras.Execute(r.Context(), cmd); err != nil {
			s.logger.Debug("command failed", "device", cmd.Device, "command", command, "error", err)
			s.writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     camera.AckAccepted,
			"command_id": cmd.ID,
			"device":     cmd.Device,
			"command":    command,
		})
	}
}

// decodeParameters reads an optional JSON object.
func decodeParameters(body io.Reader) (map[string]any, error) {
	if body == nil {
		return nil, nil
	}
	var params map[string]any
	if err := json.NewDecoder(body).Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return params, nil
}

// writeCommandError maps bridge errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, camera.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, camera.ErrInvalidParameters), errors.Is(err, camera.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, camera.ErrRejected):
		writeError(w, http.StatusConflict, ErrCodeRejected, err.Error())
	case errors.Is(err, camera.ErrStopped):
		writeServiceUnavailable(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "camera did not respond in time")
	default:
		s.logger.Error("command error", "error", err)
		writeInternalError(w, "command failed")
	}
}
