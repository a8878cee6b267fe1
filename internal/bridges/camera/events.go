package camera

import (
	"encoding/json"

	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// channelPrefix prefixes websocket channels: "camera.exposure".
const channelPrefix = "camera."

// notify fans a device notification out. It is called from the dispatch
// goroutine and, for file_written, from a camera writer goroutine.
func (b *Bridge) notify(ev ccd.Event) {
	// Raw frames are only kept by the stream display.
	if ev.Kind == ccd.EventVideoFrame {
		return
	}

	b.logEvent(ev)
	msg := NewEventMessage(ev)

	b.publishEvent(msg)
	if b.opts.Broadcaster != nil {
		b.opts.Broadcaster.Broadcast(channelPrefix+msg.Kind, msg)
	}
	b.recordTelemetry(ev)
	b.recordCapture(ev)

	if state, changed := b.updateState(ev); changed {
		b.publishState(state)
	}
}

func (b *Bridge) logEvent(ev ccd.Event) {
	switch ev.Kind {
	case ccd.EventCaptureFailed:
		b.logger.Warn("capture failed", "device", ev.Device, "chip", ev.Chip.String())
	case ccd.EventNotice:
		b.logger.Info("camera notice", "device", ev.Device, "message", ev.Message)
	case ccd.EventFileWritten:
		if ev.Err != nil {
			b.logger.Error("capture write failed", "device", ev.Device, "path", ev.Path, "error", ev.Err)
		} else {
			b.logger.Debug("capture written", "device", ev.Device, "path", ev.Path, "bytes", ev.Size)
		}
	case ccd.EventFileSaved:
		b.logger.Info("capture saved", "device", ev.Device, "path", ev.Path)
	}
}

func (b *Bridge) publishEvent(msg EventMessage) {
	if b.opts.MQTT == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal event", "kind", msg.Kind, "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.DeviceEvent(msg.Device, msg.Kind), payload, 0, false); err != nil {
		b.logger.Debug("event publish failed", "kind", msg.Kind, "error", err)
	}
}

func (b *Bridge) publishState(state StateMessage) {
	if b.opts.MQTT == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		b.logger.Error("failed to marshal state", "device", state.Device, "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.DeviceState(state.Device), payload, 1, true); err != nil {
		b.logger.Debug("state publish failed", "device", state.Device, "error", err)
	}
}

func (b *Bridge) recordTelemetry(ev ccd.Event) {
	t := b.opts.Telemetry
	if t == nil {
		return
	}
	switch ev.Kind {
	case ccd.EventTemperature:
		t.WriteTemperature(ev.Device, ev.Value)
	case ccd.EventExposure:
		t.WriteExposure(ev.Device, ev.Chip.String(), ev.Value, string(ev.State))
	case ccd.EventFPS:
		t.WriteFrameRate(ev.Device, ev.Value, ev.Average)
	case ccd.EventGuideStar:
		t.WriteGuideStar(ev.Device, ev.Chip.String(), ev.X, ev.Y, ev.Fit)
	case ccd.EventFileWritten:
		t.WriteCapture(ev.Device, ev.Chip.String(), ev.Format, ev.Size, ev.Err != nil)
	}
}

func (b *Bridge) recordCapture(ev ccd.Event) {
	if b.opts.Recorder == nil || ev.Kind != ccd.EventFileWritten {
		return
	}
	c := catalog.Capture{
		Device:     ev.Device,
		Chip:       ev.Chip.String(),
		Path:       ev.Path,
		Format:     ev.Format,
		Size:       ev.Size,
		CapturedAt: ev.Time,
	}
	if ev.Err != nil {
		c.Error = ev.Err.Error()
	}
	if err := b.opts.Recorder.Record(c); err != nil {
		b.logger.Warn("capture not catalogued", "path", ev.Path, "error", err)
	}
}

// updateState folds a notification into the camera state. It reports
// whether the state changed in a way worth publishing.
func (b *Bridge) updateState(ev ccd.Event) (StateMessage, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()

	s, ok := b.states[ev.Device]
	if !ok {
		s = &StateMessage{Device: ev.Device}
		b.states[ev.Device] = s
	}

	changed := true
	switch ev.Kind {
	case ccd.EventTemperature:
		changed = s.Temperature == nil || *s.Temperature != ev.Value
		s.Temperature = ptr(ev.Value)
	case ccd.EventCooler:
		s.CoolerOn = ptr(ev.On)
	case ccd.EventExposure:
		if s.Exposures == nil {
			s.Exposures = make(map[string]ExposureState)
		}
		chip := ev.Chip.String()
		prev, seen := s.Exposures[chip]
		// Countdown ticks are telemetry; only state transitions are published.
		changed = !seen || prev.State != string(ev.State)
		s.Exposures[chip] = ExposureState{Remaining: ev.Value, State: string(ev.State)}
	case ccd.EventVideoStream:
		s.Streaming = ev.On
	case ccd.EventVideoRecord:
		s.Recording = ev.On
	case ccd.EventFPS:
		s.FPS = ptr(ev.Average)
		changed = false
	case ccd.EventFileWritten:
		if ev.Err != nil {
			s.Failures++
		} else {
			s.Captures++
			s.LastFile = ev.Path
		}
	case ccd.EventCaptureFailed:
		s.Failures++
		if s.Exposures == nil {
			s.Exposures = make(map[string]ExposureState)
		}
		s.Exposures[ev.Chip.String()] = ExposureState{State: string(indi.StateAlert)}
	default:
		changed = false
	}

	if changed {
		s.Timestamp = b.now().UTC()
	}
	return s.clone(), changed
}
