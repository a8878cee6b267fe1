package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

// Command names.
const (
	CmdCapture           = "capture"
	CmdAbort             = "abort"
	CmdSetFrame          = "set_frame"
	CmdResetFrame        = "reset_frame"
	CmdSetBinning        = "set_binning"
	CmdSetFrameType      = "set_frame_type"
	CmdSetISO            = "set_iso"
	CmdSetCooler         = "set_cooler"
	CmdSetTemperature    = "set_temperature"
	CmdSetTransferFormat = "set_transfer_format"
	CmdSetTelescope      = "set_telescope"
	CmdSetGain           = "set_gain"
	CmdSetOffset         = "set_offset"
	CmdSetSequence       = "set_sequence"
	CmdSetDirectory      = "set_capture_directory"
	CmdSetFilter         = "set_filter"
	CmdSetVideoStream    = "set_video_stream"
	CmdStartRecording    = "start_recording"
	CmdStopRecording     = "stop_recording"
	CmdSetUploadMode     = "set_upload_mode"
	CmdSetLooping        = "set_looping"
)

type commandFunc func(dev *ccd.Device, cmd CommandMessage) error

var commandHandlers = map[string]commandFunc{
	CmdCapture:           cmdCapture,
	CmdAbort:             chipCommand(func(c *ccd.Chip, _ params) (bool, error) { return c.AbortExposure(), nil }),
	CmdSetFrame:          chipCommand(setFrame),
	CmdResetFrame:        chipCommand(func(c *ccd.Chip, _ params) (bool, error) { return c.ResetFrame(), nil }),
	CmdSetBinning:        chipCommand(setBinning),
	CmdSetFrameType:      chipCommand(setFrameType),
	CmdSetISO:            chipCommand(setISO),
	CmdSetCooler:         deviceCommand(setCooler),
	CmdSetTemperature:    deviceCommand(setTemperature),
	CmdSetTransferFormat: deviceCommand(setTransferFormat),
	CmdSetTelescope:      deviceCommand(setTelescope),
	CmdSetGain:           deviceCommand(numberSetter("value", (*ccd.Device).SetGain)),
	CmdSetOffset:         deviceCommand(numberSetter("value", (*ccd.Device).SetOffset)),
	CmdSetSequence:       deviceCommand(setSequence),
	CmdSetDirectory:      deviceCommand(setDirectory),
	CmdSetFilter:         deviceCommand(setFilter),
	CmdSetVideoStream:    deviceCommand(setVideoStream),
	CmdStartRecording:    deviceCommand(startRecording),
	CmdStopRecording:     deviceCommand(func(d *ccd.Device, _ params) (bool, error) { return d.StopRecording(), nil }),
	CmdSetUploadMode:     deviceCommand(setUploadMode),
	CmdSetLooping:        deviceCommand(setLooping),
}

// Commands returns the supported command names, sorted.
func Commands() []string {
	names := make([]string, 0, len(commandHandlers))
	for name := range commandHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a command on the dispatch goroutine and waits for it.
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) error {
	handler, ok := commandHandlers[cmd.Command]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return b.Inspect(ctx, cmd.Device, func(dev *ccd.Device) error {
		return handler(dev, cmd)
	})
}

// handleCommandMessage processes a command received over MQTT and
// publishes the acknowledgement.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("failed to parse command", "topic", topic, "error", err)
		return nil
	}
	if cmd.Device == "" {
		cmd.Device = b.deviceForSegment(b.topics.DeviceFromTopic(topic))
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device", cmd.Device,
		"command", cmd.Command)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	err := b.Execute(ctx, cmd)
	if err != nil {
		b.logger.Warn("command failed", "command_id", cmd.ID, "command", cmd.Command, "error", err)
	}
	b.publishAck(cmd, err)
	return nil
}

// deviceForSegment maps a topic segment back to a camera name.
func (b *Bridge) deviceForSegment(segment string) string {
	if segment == "" {
		return ""
	}
	for _, name := range b.Names() {
		if mqtt.TopicSegment(name) == segment {
			return name
		}
	}
	return segment
}

func (b *Bridge) publishAck(cmd CommandMessage, err error) {
	if b.opts.MQTT == nil {
		return
	}
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: b.now().UTC(),
		Device:    cmd.Device,
		Command:   cmd.Command,
		Status:    AckAccepted,
		Protocol:  mqtt.Protocol,
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	}

	payload, mErr := json.Marshal(ack)
	if mErr != nil {
		b.logger.Error("failed to marshal ack", "error", mErr)
		return
	}
	if pErr := b.opts.MQTT.Publish(b.topics.DeviceAck(cmd.Device), payload, 1, false); pErr != nil {
		b.logger.Warn("failed to publish ack", "command_id", cmd.ID, "error", pErr)
	}
}

// ErrorCode maps a command error to its acknowledgement code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrRejected):
		return ErrCodeRejected
	default:
		return ErrCodeBridgeError
	}
}

// params gives typed access to command parameters. JSON numbers decode as
// float64.
type params map[string]any

func (p params) number(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("%w: %q is required", ErrInvalidParameters, key)
	default:
		return 0, fmt.Errorf("%w: %q must be a number", ErrInvalidParameters, key)
	}
}

func (p params) integer(key string) (int, error) {
	f, err := p.number(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidParameters, key)
	}
	return int(f), nil
}

func (p params) boolean(key string) (bool, error) {
	switch v := p[key].(type) {
	case bool:
		return v, nil
	case nil:
		return false, fmt.Errorf("%w: %q is required", ErrInvalidParameters, key)
	default:
		return false, fmt.Errorf("%w: %q must be a boolean", ErrInvalidParameters, key)
	}
}

func (p params) text(key string) (string, error) {
	switch v := p[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%w: %q is required", ErrInvalidParameters, key)
	default:
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidParameters, key)
	}
}

// optional reports whether key is present.
func (p params) optional(key string) bool {
	_, ok := p[key]
	return ok
}

func rejected(cmd string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, cmd)
}

func chipOf(dev *ccd.Device, name string) (*ccd.Chip, error) {
	typ := ccd.ChipPrimary
	if name != "" {
		t, err := ccd.ParseChipType(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
		}
		typ = t
	}
	chip := dev.Chip(typ)
	if chip == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrRejected, ccd.ErrNoChip, typ)
	}
	return chip, nil
}

func chipCommand(fn func(c *ccd.Chip, p params) (bool, error)) commandFunc {
	return func(dev *ccd.Device, cmd CommandMessage) error {
		chip, err := chipOf(dev, cmd.Chip)
		if err != nil {
			return err
		}
		ok, err := fn(chip, params(cmd.Parameters))
		if err != nil {
			return err
		}
		return rejected(cmd.Command, ok)
	}
}

func deviceCommand(fn func(d *ccd.Device, p params) (bool, error)) commandFunc {
	return func(dev *ccd.Device, cmd CommandMessage) error {
		ok, err := fn(dev, params(cmd.Parameters))
		if err != nil {
			return err
		}
		return rejected(cmd.Command, ok)
	}
}

func numberSetter(key string, set func(*ccd.Device, float64) bool) func(*ccd.Device, params) (bool, error) {
	return func(d *ccd.Device, p params) (bool, error) {
		v, err := p.number(key)
		if err != nil {
			return false, err
		}
		return set(d, v), nil
	}
}

// cmdCapture starts an exposure. Optional parameters: batch, mode, filter.
func cmdCapture(dev *ccd.Device, cmd CommandMessage) error {
	chip, err := chipOf(dev, cmd.Chip)
	if err != nil {
		return err
	}
	p := params(cmd.Parameters)
	seconds, err := p.number("exposure")
	if err != nil {
		return err
	}
	if seconds < 0 {
		return fmt.Errorf("%w: exposure must not be negative", ErrInvalidParameters)
	}

	if p.optional("batch") {
		batch, err := p.boolean("batch")
		if err != nil {
			return err
		}
		chip.SetBatchMode(batch)
	}
	if p.optional("mode") {
		name, err := p.text("mode")
		if err != nil {
			return err
		}
		mode, err := ccd.ParseCaptureMode(name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
		}
		chip.SetCaptureMode(mode)
	}
	if p.optional("filter") {
		filter, err := p.text("filter")
		if err != nil {
			return err
		}
		chip.SetCaptureFilter(filter)
	}
	return rejected(cmd.Command, chip.Capture(seconds))
}

func setFrame(c *ccd.Chip, p params) (bool, error) {
	var vals [4]int
	for i, key := range []string{"x", "y", "width", "height"} {
		v, err := p.integer(key)
		if err != nil {
			return false, err
		}
		vals[i] = v
	}
	force := false
	if p.optional("force") {
		f, err := p.boolean("force")
		if err != nil {
			return false, err
		}
		force = f
	}
	return c.SetFrame(vals[0], vals[1], vals[2], vals[3], force), nil
}

func setBinning(c *ccd.Chip, p params) (bool, error) {
	x, err := p.integer("x")
	if err != nil {
		return false, err
	}
	y, err := p.integer("y")
	if err != nil {
		return false, err
	}
	return c.SetBinning(x, y), nil
}

func setFrameType(c *ccd.Chip, p params) (bool, error) {
	name, err := p.text("type")
	if err != nil {
		return false, err
	}
	return c.SetFrameTypeName(name), nil
}

func setISO(c *ccd.Chip, p params) (bool, error) {
	index, err := p.integer("index")
	if err != nil {
		return false, err
	}
	return c.SetISOIndex(index), nil
}

func setCooler(d *ccd.Device, p params) (bool, error) {
	on, err := p.boolean("on")
	if err != nil {
		return false, err
	}
	return d.SetCoolerControl(on), nil
}

func setTemperature(d *ccd.Device, p params) (bool, error) {
	celsius, err := p.number("celsius")
	if err != nil {
		return false, err
	}
	return d.SetTemperature(celsius), nil
}

func setTransferFormat(d *ccd.Device, p params) (bool, error) {
	name, err := p.text("format")
	if err != nil {
		return false, err
	}
	format, err := ccd.ParseTransferFormat(name)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return d.SetTransferFormat(format), nil
}

func setTelescope(d *ccd.Device, p params) (bool, error) {
	name, err := p.text("type")
	if err != nil {
		return false, err
	}
	switch name {
	case "primary":
		return d.SetTelescopeType(ccd.TelescopePrimary), nil
	case "guide":
		return d.SetTelescopeType(ccd.TelescopeGuide), nil
	}
	return false, fmt.Errorf("%w: telescope %q", ErrInvalidParameters, name)
}

func setSequence(d *ccd.Device, p params) (bool, error) {
	prefix, err := p.text("prefix")
	if err != nil {
		return false, err
	}
	next := 1
	if p.optional("next") {
		if next, err = p.integer("next"); err != nil {
			return false, err
		}
		if next < 1 {
			return false, fmt.Errorf("%w: next must be at least 1", ErrInvalidParameters)
		}
	}
	d.SetSequence(prefix, next)
	return true, nil
}

func setDirectory(d *ccd.Device, p params) (bool, error) {
	dir, err := p.text("path")
	if err != nil {
		return false, err
	}
	d.SetCaptureDirectory(dir)
	return true, nil
}

func setFilter(d *ccd.Device, p params) (bool, error) {
	filter, err := p.text("filter")
	if err != nil {
		return false, err
	}
	d.SetFilter(filter)
	return true, nil
}

func setVideoStream(d *ccd.Device, p params) (bool, error) {
	on, err := p.boolean("on")
	if err != nil {
		return false, err
	}
	return d.SetVideoStreamEnabled(on), nil
}

// startRecording records until stopped, or for "seconds" or "frames".
func startRecording(d *ccd.Device, p params) (bool, error) {
	switch {
	case p.optional("seconds"):
		s, err := p.number("seconds")
		if err != nil {
			return false, err
		}
		return d.StartDurationRecording(s), nil
	case p.optional("frames"):
		n, err := p.integer("frames")
		if err != nil {
			return false, err
		}
		return d.StartFramesRecording(n), nil
	}
	return d.StartRecording(), nil
}

func setUploadMode(d *ccd.Device, p params) (bool, error) {
	name, err := p.text("mode")
	if err != nil {
		return false, err
	}
	mode, err := ccd.ParseUploadMode(name)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return d.SetUploadMode(mode), nil
}

func setLooping(d *ccd.Device, p params) (bool, error) {
	on, err := p.boolean("on")
	if err != nil {
		return false, err
	}
	if !d.SetExposureLoopingEnabled(on) {
		return false, nil
	}
	if on && p.optional("count") {
		count, err := p.integer("count")
		if err != nil {
			return false, err
		}
		return d.SetExposureLoopCount(count), nil
	}
	return true, nil
}
