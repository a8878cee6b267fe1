package api

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-indi/internal/preview"
)

// MockCameras is a test implementation of Cameras.
type MockCameras struct {
	mu         sync.Mutex
	names      []string
	states     map[string]camera.StateMessage
	health     camera.HealthMessage
	devices    map[string]*ccd.Device
	executeErr error
	commands   []camera.CommandMessage
}

func NewMockCameras(names ...string) *MockCameras {
	return &MockCameras{
		names:   names,
		states:  make(map[string]camera.StateMessage),
		devices: make(map[string]*ccd.Device),
		health:  camera.HealthMessage{Bridge: mqtt.Protocol, Status: camera.HealthHealthy},
	}
}

func (m *MockCameras) Names() []string { return m.names }

func (m *MockCameras) State(device string) (camera.StateMessage, bool) {
	s, ok := m.states[device]
	return s, ok
}

func (m *MockCameras) Health() camera.HealthMessage { return m.health }

func (m *MockCameras) Execute(_ context.Context, cmd camera.CommandMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.executeErr != nil {
		return m.executeErr
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *MockCameras) Inspect(_ context.Context, device string, fn func(dev *ccd.Device) error) error {
	dev, ok := m.devices[device]
	if !ok {
		return camera.ErrUnknownDevice
	}
	return fn(dev)
}

func (m *MockCameras) lastCommand() (camera.CommandMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return camera.CommandMessage{}, false
	}
	return m.commands[len(m.commands)-1], true
}

// MockPreviews is a test implementation of Previews.
type MockPreviews struct {
	tabs      []preview.Tab
	png       []byte
	stream    preview.StreamInfo
	frame     []byte
	format    string
	err       error
	closed    []int
	hidden    []string
	lastChip  string
	lastMode  string
	lastTabID int
}

func (m *MockPreviews) Tabs(string) ([]preview.Tab, error) { return m.tabs, m.err }

func (m *MockPreviews) TabPNG(_ string, tab int) ([]byte, error) {
	m.lastTabID = tab
	return m.png, m.err
}

func (m *MockPreviews) ChipViewPNG(_, chip, mode string) ([]byte, error) {
	m.lastChip, m.lastMode = chip, mode
	return m.png, m.err
}

func (m *MockPreviews) CloseTab(_ string, tab int) error {
	if m.err != nil {
		return m.err
	}
	m.closed = append(m.closed, tab)
	return nil
}

func (m *MockPreviews) Stream(string) (preview.StreamInfo, error) { return m.stream, m.err }

func (m *MockPreviews) LatestFrame(string) ([]byte, string, error) {
	return m.frame, m.format, m.err
}

func (m *MockPreviews) HideStream(device string) error {
	if m.err != nil {
		return m.err
	}
	m.hidden = append(m.hidden, device)
	return nil
}

// MockStateSource is a test implementation of StateSource.
type MockStateSource struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func NewMockStateSource() *MockStateSource {
	return &MockStateSource{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (m *MockStateSource) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockStateSource) IsConnected() bool { return m.connected }

func (m *MockStateSource) deliver(filter, topic string, payload []byte) error {
	m.mu.Lock()
	h := m.handlers[filter]
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(topic, payload)
}

// fakeProperties is a minimal property directory for building real devices.
type fakeProperties struct {
	name    string
	numbers map[string]*indi.NumberVector
}

func newFakeProperties(name string) *fakeProperties {
	return &fakeProperties{name: name, numbers: make(map[string]*indi.NumberVector)}
}

func (p *fakeProperties) Name() string                          { return p.name }
func (p *fakeProperties) Number(name string) *indi.NumberVector { return p.numbers[name] }
func (p *fakeProperties) Switch(string) *indi.SwitchVector      { return nil }
func (p *fakeProperties) Text(string) *indi.TextVector          { return nil }
func (p *fakeProperties) Blob(string) *indi.BlobVector          { return nil }
func (p *fakeProperties) SendNumber(*indi.NumberVector) error   { return nil }
func (p *fakeProperties) SendSwitch(*indi.SwitchVector) error   { return nil }
func (p *fakeProperties) SendText(*indi.TextVector) error       { return nil }
func (p *fakeProperties) BlobEnabled(string) bool               { return false }
func (p *fakeProperties) IsConnected() bool                     { return true }

func (p *fakeProperties) SetBlobMode(indi.BlobMode, string) error { return nil }

// newCooledDevice builds a device with a writable temperature property.
func newCooledDevice(name string, temperature float64) (*ccd.Device, error) {
	props := newFakeProperties(name)
	temp := &indi.NumberVector{
		Vector:  indi.Vector{Device: name, Name: "CCD_TEMPERATURE", Perm: indi.PermRW, State: indi.StateIdle},
		Numbers: []indi.Number{{Name: "CCD_TEMPERATURE_VALUE", Min: -50, Max: 50, Value: temperature}},
	}
	props.numbers[temp.Name] = temp

	dev, err := ccd.NewDevice(ccd.Config{Properties: props, Decoder: imaging.NewDecoder()})
	if err != nil {
		return nil, err
	}
	dev.PropertyDefined(temp)
	return dev, nil
}
