package camera

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

const testDevice = "CCD Simulator"

// MockSession runs Exec functions inline, one at a time.
type MockSession struct {
	mu        sync.Mutex
	execMu    sync.Mutex
	connected bool
	closed    bool
	stats     indi.Stats
	execs     int
}

func NewMockSession() *MockSession {
	return &MockSession{connected: true}
}

func (s *MockSession) Exec(ctx context.Context, fn func()) error {
	s.mu.Lock()
	closed := s.closed
	s.execs++
	s.mu.Unlock()
	if closed {
		return indi.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.execMu.Lock()
	defer s.execMu.Unlock()
	fn()
	return nil
}

func (s *MockSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *MockSession) Stats() indi.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *MockSession) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MockSession) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions map[string]mqtt.MessageHandler
	connected     bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected:     true,
		subscriptions: make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// publishedTo returns the messages sent to topic.
func (m *MockMQTTClient) publishedTo(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions[topic]
}

// MockTelemetry records telemetry calls by kind.
type MockTelemetry struct {
	mu    sync.Mutex
	calls []string
}

func (t *MockTelemetry) record(kind string) {
	t.mu.Lock()
	t.calls = append(t.calls, kind)
	t.mu.Unlock()
}

func (t *MockTelemetry) WriteTemperature(string, float64)                 { t.record("temperature") }
func (t *MockTelemetry) WriteExposure(string, string, float64, string)    { t.record("exposure") }
func (t *MockTelemetry) WriteFrameRate(string, float64, float64)          { t.record("fps") }
func (t *MockTelemetry) WriteGuideStar(string, string, float64, float64, float64) {
	t.record("guide_star")
}
func (t *MockTelemetry) WriteCapture(string, string, string, int, bool) { t.record("capture") }

func (t *MockTelemetry) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// MockRecorder collects catalogued captures.
type MockRecorder struct {
	mu       sync.Mutex
	captures []catalog.Capture
	err      error
}

func (r *MockRecorder) Record(c catalog.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.captures = append(r.captures, c)
	return nil
}

func (r *MockRecorder) Captures() []catalog.Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]catalog.Capture(nil), r.captures...)
}

// MockBroadcaster collects websocket broadcasts.
type MockBroadcaster struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (b *MockBroadcaster) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
}

func (b *MockBroadcaster) Channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.channels...)
}

// MockDisplays hands out no displays and records forgotten devices.
type MockDisplays struct {
	mu        sync.Mutex
	forgotten []string
}

func (d *MockDisplays) NewViewer(string) ccd.Viewer                                   { return nil }
func (d *MockDisplays) NewStream(string) ccd.StreamDisplay                            { return nil }
func (d *MockDisplays) NewChipView(string, ccd.ChipType, ccd.CaptureMode) ccd.View { return nil }

func (d *MockDisplays) Forget(device string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgotten = append(d.forgotten, device)
}

func (d *MockDisplays) Forgotten() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.forgotten...)
}

// mockProperties is an in-memory property directory.
type mockProperties struct {
	name      string
	numbers   map[string]*indi.NumberVector
	switches  map[string]*indi.SwitchVector
	texts     map[string]*indi.TextVector
	connected bool
	sent      []indi.Property
	sendErr   error
}

func newMockProperties(name string) *mockProperties {
	return &mockProperties{
		name:      name,
		numbers:   make(map[string]*indi.NumberVector),
		switches:  make(map[string]*indi.SwitchVector),
		texts:     make(map[string]*indi.TextVector),
		connected: true,
	}
}

func (p *mockProperties) Name() string                          { return p.name }
func (p *mockProperties) Number(name string) *indi.NumberVector { return p.numbers[name] }
func (p *mockProperties) Switch(name string) *indi.SwitchVector { return p.switches[name] }
func (p *mockProperties) Text(name string) *indi.TextVector     { return p.texts[name] }
func (p *mockProperties) Blob(string) *indi.BlobVector          { return nil }
func (p *mockProperties) IsConnected() bool                     { return p.connected }
func (p *mockProperties) BlobEnabled(string) bool               { return false }

func (p *mockProperties) SetBlobMode(indi.BlobMode, string) error { return p.sendErr }

func (p *mockProperties) SendNumber(v *indi.NumberVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, v.Clone())
	return nil
}

func (p *mockProperties) SendSwitch(v *indi.SwitchVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, v.Clone())
	return nil
}

func (p *mockProperties) SendText(v *indi.TextVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, v.Clone())
	return nil
}

// Properties returns every property, sorted by name.
func (p *mockProperties) Properties() []indi.Property {
	var out []indi.Property
	for _, v := range p.numbers {
		out = append(out, v)
	}
	for _, v := range p.switches {
		out = append(out, v)
	}
	for _, v := range p.texts {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta().Name < out[j].Meta().Name })
	return out
}

func (p *mockProperties) addNumber(name string, perm indi.Perm, numbers ...indi.Number) *indi.NumberVector {
	v := &indi.NumberVector{
		Vector:  indi.Vector{Device: p.name, Name: name, Perm: perm, State: indi.StateIdle},
		Numbers: numbers,
	}
	p.numbers[name] = v
	return v
}

func (p *mockProperties) addSwitch(name string, switches ...indi.Switch) *indi.SwitchVector {
	v := &indi.SwitchVector{
		Vector:   indi.Vector{Device: p.name, Name: name, Perm: indi.PermRW, State: indi.StateIdle},
		Rule:     indi.RuleOneOfMany,
		Switches: switches,
	}
	p.switches[name] = v
	return v
}

func (p *mockProperties) addText(name string, texts ...indi.Text) *indi.TextVector {
	v := &indi.TextVector{
		Vector: indi.Vector{Device: p.name, Name: name, Perm: indi.PermRO, State: indi.StateIdle},
		Texts:  texts,
	}
	p.texts[name] = v
	return v
}

// newCameraProperties defines a primary chip with binning, abort and a
// cooled sensor at -10 C.
func newCameraProperties(name string) *mockProperties {
	p := newMockProperties(name)
	p.addNumber("CCD_EXPOSURE", indi.PermRW,
		indi.Number{Name: "CCD_EXPOSURE_VALUE", Min: 0, Max: 3600, Value: 0})
	p.addNumber("CCD_BINNING", indi.PermRW,
		indi.Number{Name: "HOR_BIN", Min: 1, Max: 4, Value: 1},
		indi.Number{Name: "VER_BIN", Min: 1, Max: 4, Value: 1})
	p.addSwitch("CCD_ABORT_EXPOSURE", indi.Switch{Name: "ABORT"})
	p.addNumber("CCD_TEMPERATURE", indi.PermRW,
		indi.Number{Name: "CCD_TEMPERATURE_VALUE", Min: -50, Max: 50, Value: -10})
	return p
}

type testHarness struct {
	bridge      *Bridge
	session     *MockSession
	mqtt        *MockMQTTClient
	telemetry   *MockTelemetry
	recorder    *MockRecorder
	broadcaster *MockBroadcaster
	displays    *MockDisplays
	now         time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		session:     NewMockSession(),
		mqtt:        NewMockMQTTClient(),
		telemetry:   &MockTelemetry{},
		recorder:    &MockRecorder{},
		broadcaster: &MockBroadcaster{},
		displays:    &MockDisplays{},
		now:         time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
	}
	b, err := NewBridge(Options{
		Session:     h.session,
		MQTT:        h.mqtt,
		Telemetry:   h.telemetry,
		Recorder:    h.recorder,
		Broadcaster: h.broadcaster,
		Displays:    h.displays,
		Capture:     ccd.Options{TempDirectory: t.TempDir()},
		Address:     "localhost:7624",
		Version:     "test",
		Now:         func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	h.bridge = b
	t.Cleanup(b.Stop)
	return h
}

// addCamera defines CCD_EXPOSURE for props, which creates the camera.
func (h *testHarness) addCamera(t *testing.T, props *mockProperties) {
	t.Helper()
	err := h.session.Exec(context.Background(), func() {
		h.bridge.propertyDefined(props, props.Number("CCD_EXPOSURE"))
	})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
}

// camera returns the device controller of a known camera.
func (h *testHarness) camera(t *testing.T, name string) *ccd.Device {
	t.Helper()
	cam := h.bridge.cameras[name]
	if cam == nil {
		t.Fatalf("camera %q not created", name)
	}
	return cam.dev
}

// lastState unmarshals the last retained state published for device.
func (h *testHarness) lastState(t *testing.T, device string) (StateMessage, int) {
	t.Helper()
	msgs := h.mqtt.publishedTo(mqtt.Topics{}.DeviceState(device))
	if len(msgs) == 0 {
		t.Fatalf("no state published for %q", device)
	}
	var s StateMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &s); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return s, len(msgs)
}
