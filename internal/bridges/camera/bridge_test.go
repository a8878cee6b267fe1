package camera

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

func TestNewBridge_RequiresSession(t *testing.T) {
	if _, err := NewBridge(Options{}); err == nil {
		t.Error("NewBridge() without session should fail")
	}
}

func TestIsCameraProperty(t *testing.T) {
	driverInfo := func(iface string) indi.Property {
		return &indi.TextVector{
			Vector: indi.Vector{Name: "DRIVER_INFO"},
			Texts:  []indi.Text{{Name: "DRIVER_INTERFACE", Value: iface}},
		}
	}

	tests := []struct {
		name string
		prop indi.Property
		want bool
	}{
		{"exposure", &indi.NumberVector{Vector: indi.Vector{Name: "CCD_EXPOSURE"}}, true},
		{"ccd info", &indi.NumberVector{Vector: indi.Vector{Name: "CCD_INFO"}}, true},
		{"primary blob", &indi.BlobVector{Vector: indi.Vector{Name: "CCD1"}}, true},
		{"ccd driver", driverInfo("2"), true},
		{"ccd and guider driver", driverInfo("6"), true},
		{"telescope driver", driverInfo("5"), false},
		{"bad interface", driverInfo("ccd"), false},
		{"driver info without interface", &indi.TextVector{Vector: indi.Vector{Name: "DRIVER_INFO"}}, false},
		{"connection", &indi.SwitchVector{Vector: indi.Vector{Name: "CONNECTION"}}, false},
		{"guider exposure", &indi.NumberVector{Vector: indi.Vector{Name: "GUIDER_EXPOSURE"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCameraProperty(tt.prop); got != tt.want {
				t.Errorf("isCameraProperty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBridge_CreatesCameraAndReplaysProperties(t *testing.T) {
	h := newTestHarness(t)
	props := newCameraProperties(testDevice)

	h.addCamera(t, props)

	if got := h.bridge.Names(); !slices.Equal(got, []string{testDevice}) {
		t.Fatalf("Names() = %v, want [%s]", got, testDevice)
	}
	if got := h.bridge.Health().Cameras; got != 1 {
		t.Errorf("Health().Cameras = %d, want 1", got)
	}

	// CCD_TEMPERATURE was defined before the camera existed; the replay
	// reports it.
	dev := h.camera(t, testDevice)
	if !dev.HasCooler() || !dev.CanCool() {
		t.Error("replayed temperature property should give cooler capabilities")
	}
	state, _ := h.lastState(t, testDevice)
	if state.Temperature == nil || *state.Temperature != -10 {
		t.Errorf("state temperature = %v, want -10", state.Temperature)
	}
	if !slices.Contains(h.telemetry.Calls(), "temperature") {
		t.Errorf("telemetry calls = %v, want temperature", h.telemetry.Calls())
	}
	if !slices.Contains(h.broadcaster.Channels(), "camera.temperature") {
		t.Errorf("broadcast channels = %v, want camera.temperature", h.broadcaster.Channels())
	}
}

func TestBridge_IgnoresOtherDevices(t *testing.T) {
	h := newTestHarness(t)
	mount := newMockProperties("Telescope Simulator")
	coord := mount.addNumber("EQUATORIAL_EOD_COORD", indi.PermRW)

	h.bridge.propertyDefined(mount, coord)

	if got := h.bridge.Names(); len(got) != 0 {
		t.Errorf("Names() = %v, want none", got)
	}
}

func TestBridge_ForwardsLaterProperties(t *testing.T) {
	h := newTestHarness(t)
	props := newMockProperties(testDevice)
	props.addNumber("CCD_EXPOSURE", indi.PermRW, indi.Number{Name: "CCD_EXPOSURE_VALUE"})
	h.addCamera(t, props)

	dev := h.camera(t, testDevice)
	if dev.HasCoolerControl() {
		t.Fatal("camera should start without cooler control")
	}

	cooler := props.addSwitch("CCD_COOLER",
		indi.Switch{Name: "COOLER_ON"}, indi.Switch{Name: "COOLER_OFF", On: true})
	h.bridge.propertyDefined(props, cooler)

	if !dev.HasCoolerControl() {
		t.Error("CCD_COOLER defined after creation should reach the camera")
	}
}

func TestBridge_RemovesCameraWithLastProperty(t *testing.T) {
	h := newTestHarness(t)
	props := newCameraProperties(testDevice)
	h.addCamera(t, props)

	delete(props.numbers, "CCD_BINNING")
	h.bridge.propertyRemoved(props, "CCD_BINNING")
	if len(h.bridge.Names()) != 1 {
		t.Fatal("camera removed while properties remain")
	}

	props.numbers = map[string]*indi.NumberVector{}
	props.switches = map[string]*indi.SwitchVector{}
	h.bridge.propertyRemoved(props, "CCD_EXPOSURE")

	if got := h.bridge.Names(); len(got) != 0 {
		t.Errorf("Names() = %v, want none", got)
	}
	if got := h.displays.Forgotten(); !slices.Equal(got, []string{testDevice}) {
		t.Errorf("Forgotten() = %v, want [%s]", got, testDevice)
	}
	if _, ok := h.bridge.State(testDevice); ok {
		t.Error("State() should be dropped with the camera")
	}
	if got := h.bridge.Health().Cameras; got != 0 {
		t.Errorf("Health().Cameras = %d, want 0", got)
	}
}

func TestBridge_ExposureStatePublishedOnTransition(t *testing.T) {
	h := newTestHarness(t)
	props := newCameraProperties(testDevice)
	h.addCamera(t, props)
	dev := h.camera(t, testDevice)
	_, before := h.lastState(t, testDevice)

	update := func(state indi.State, remaining float64) {
		v := props.Number("CCD_EXPOSURE").Clone()
		v.State = state
		v.Numbers[0].Value = remaining
		dev.NumberUpdated(v)
	}

	update(indi.StateBusy, 5)
	update(indi.StateBusy, 4)
	update(indi.StateBusy, 3)
	update(indi.StateOk, 0)

	state, count := h.lastState(t, testDevice)
	if got := count - before; got != 2 {
		t.Errorf("state publishes = %d, want 2 (busy, ok)", got)
	}
	exp, ok := state.Exposures["primary"]
	if !ok {
		t.Fatalf("state exposures = %v, want primary", state.Exposures)
	}
	if exp.State != string(indi.StateOk) || exp.Remaining != 0 {
		t.Errorf("primary exposure = %+v, want Ok/0", exp)
	}

	exposures := 0
	for _, c := range h.telemetry.Calls() {
		if c == "exposure" {
			exposures++
		}
	}
	if exposures != 4 {
		t.Errorf("exposure telemetry points = %d, want 4", exposures)
	}
}

func TestBridge_CaptureFailedCountsFailure(t *testing.T) {
	h := newTestHarness(t)
	props := newCameraProperties(testDevice)
	h.addCamera(t, props)

	v := props.Number("CCD_EXPOSURE").Clone()
	v.State = indi.StateAlert
	h.camera(t, testDevice).NumberUpdated(v)

	state, ok := h.bridge.State(testDevice)
	if !ok {
		t.Fatal("State() not found")
	}
	if state.Failures != 1 {
		t.Errorf("Failures = %d, want 1", state.Failures)
	}
	if got := state.Exposures["primary"].State; got != string(indi.StateAlert) {
		t.Errorf("exposure state = %q, want Alert", got)
	}
	if got := h.mqtt.publishedTo(mqtt.Topics{}.DeviceEvent(testDevice, "capture_failed")); len(got) != 1 {
		t.Errorf("capture_failed events = %d, want 1", len(got))
	}
}

func TestBridge_FileWrittenRecordsCapture(t *testing.T) {
	h := newTestHarness(t)

	h.bridge.notify(ccd.Event{
		Kind:   ccd.EventFileWritten,
		Device: testDevice,
		Chip:   ccd.ChipPrimary,
		Path:   "/data/M31_001.fits",
		Format: ".fits",
		Size:   2048,
		Time:   h.now,
	})
	h.bridge.notify(ccd.Event{
		Kind:   ccd.EventFileWritten,
		Device: testDevice,
		Chip:   ccd.ChipPrimary,
		Path:   "/data/M31_002.fits",
		Format: ".fits",
		Err:    errors.New("disk full"),
		Time:   h.now,
	})

	captures := h.recorder.Captures()
	if len(captures) != 2 {
		t.Fatalf("recorded captures = %d, want 2", len(captures))
	}
	if c := captures[0]; c.Device != testDevice || c.Chip != "primary" || c.Size != 2048 || c.Error != "" {
		t.Errorf("capture[0] = %+v", c)
	}
	if !captures[0].CapturedAt.Equal(h.now) {
		t.Errorf("CapturedAt = %v, want %v", captures[0].CapturedAt, h.now)
	}
	if captures[1].Error != "disk full" {
		t.Errorf("capture[1].Error = %q, want disk full", captures[1].Error)
	}

	state, _ := h.lastState(t, testDevice)
	if state.Captures != 1 || state.Failures != 1 {
		t.Errorf("Captures/Failures = %d/%d, want 1/1", state.Captures, state.Failures)
	}
	if state.LastFile != "/data/M31_001.fits" {
		t.Errorf("LastFile = %q, want the successful write", state.LastFile)
	}
}

func TestBridge_VideoFramesNotPublished(t *testing.T) {
	h := newTestHarness(t)

	h.bridge.notify(ccd.Event{Kind: ccd.EventVideoFrame, Device: testDevice, Frame: []byte{1, 2, 3}})

	if got := h.mqtt.GetPublished(); len(got) != 0 {
		t.Errorf("published = %d messages, want 0", len(got))
	}
	if got := h.broadcaster.Channels(); len(got) != 0 {
		t.Errorf("broadcast = %v, want none", got)
	}
}

func TestBridge_FPSNotPublishedAsState(t *testing.T) {
	h := newTestHarness(t)

	h.bridge.notify(ccd.Event{Kind: ccd.EventFPS, Device: testDevice, Value: 30, Average: 29.5})

	if got := h.mqtt.publishedTo(mqtt.Topics{}.DeviceState(testDevice)); len(got) != 0 {
		t.Errorf("state publishes = %d, want 0", len(got))
	}
	state, ok := h.bridge.State(testDevice)
	if !ok || state.FPS == nil || *state.FPS != 29.5 {
		t.Errorf("State().FPS = %v, want 29.5", state.FPS)
	}
	if got := h.mqtt.publishedTo(mqtt.Topics{}.DeviceEvent(testDevice, "fps")); len(got) != 1 {
		t.Errorf("fps events = %d, want 1", len(got))
	}
}

func TestBridge_RecorderErrorDoesNotStopEvents(t *testing.T) {
	h := newTestHarness(t)
	h.recorder.err = errors.New("queue full")

	h.bridge.notify(ccd.Event{Kind: ccd.EventFileWritten, Device: testDevice, Path: "/data/a.fits"})

	if got := h.mqtt.publishedTo(mqtt.Topics{}.DeviceEvent(testDevice, "file_written")); len(got) != 1 {
		t.Errorf("file_written events = %d, want 1", len(got))
	}
}

func TestBridge_StartSubscribes(t *testing.T) {
	h := newTestHarness(t)

	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if h.mqtt.handler(mqtt.Topics{}.AllDeviceCommands()) == nil {
		t.Error("Start() should subscribe to camera commands")
	}
	health := h.mqtt.publishedTo(mqtt.Topics{}.Health())
	if len(health) == 0 {
		t.Fatal("Start() should publish health")
	}
	if !health[0].Retained || health[0].QoS != 1 {
		t.Errorf("health publish retained=%v qos=%d, want retained qos 1", health[0].Retained, health[0].QoS)
	}

	h.bridge.Stop()
	if h.mqtt.handler(mqtt.Topics{}.AllDeviceCommands()) != nil {
		t.Error("Stop() should drop the command subscription")
	}
}

func TestBridge_StartWithoutMQTT(t *testing.T) {
	b, err := NewBridge(Options{Session: NewMockSession()})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	defer b.Stop()

	if err := b.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

func TestBridge_Stop(t *testing.T) {
	h := newTestHarness(t)
	h.addCamera(t, newCameraProperties(testDevice))

	h.bridge.Stop()
	h.bridge.Stop()

	if got := h.bridge.Names(); len(got) != 0 {
		t.Errorf("Names() after Stop = %v, want none", got)
	}
	err := h.bridge.Inspect(context.Background(), testDevice, func(*ccd.Device) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Inspect() after Stop error = %v, want ErrStopped", err)
	}
}

func TestBridge_StopAfterSessionClosed(t *testing.T) {
	h := newTestHarness(t)
	h.addCamera(t, newCameraProperties(testDevice))
	h.session.close()

	h.bridge.Stop()

	if got := h.bridge.Names(); len(got) != 0 {
		t.Errorf("Names() after Stop = %v, want none", got)
	}
}

func TestBridge_InspectUnknownDevice(t *testing.T) {
	h := newTestHarness(t)

	err := h.bridge.Inspect(context.Background(), "Nope", func(*ccd.Device) error { return nil })
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Inspect() error = %v, want ErrUnknownDevice", err)
	}
}
