package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// commandTimeout bounds MQTT commands waiting for the dispatch goroutine.
	commandTimeout = 5 * time.Second

	// stopTimeout bounds closing the cameras on Stop.
	stopTimeout = 30 * time.Second

	// mediaQueueSize is the number of websocket media frames buffered per
	// camera before frames are dropped.
	mediaQueueSize = 4

	// driverInterfaceCCD is the CCD bit of DRIVER_INFO.DRIVER_INTERFACE.
	driverInterfaceCCD = 1 << 1
)

// Session is the INDI session the bridge is attached to.
// *indi.Client satisfies it.
type Session interface {
	Exec(ctx context.Context, fn func()) error
	IsConnected() bool
	Stats() indi.Stats
}

var _ Session = (*indi.Client)(nil)

// MQTTClient is the subset of the MQTT client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Telemetry records camera measurements. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteTemperature(device string, celsius float64)
	WriteExposure(device, chip string, remaining float64, state string)
	WriteFrameRate(device string, instant, average float64)
	WriteGuideStar(device, chip string, x, y, fit float64)
	WriteCapture(device, chip, format string, bytes int, failed bool)
}

// CaptureRecorder stores completed file writes. *catalog.Recorder
// satisfies it.
type CaptureRecorder interface {
	Record(c catalog.Capture) error
}

// Broadcaster pushes events to websocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// DisplayStore creates camera displays and forgets them when a camera goes
// away. *preview.Store satisfies it.
type DisplayStore interface {
	ccd.Displays
	Forget(device string)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the collaborators of a Bridge. Only Session is required.
type Options struct {
	Session     Session
	MQTT        MQTTClient
	Telemetry   Telemetry
	Recorder    CaptureRecorder
	Broadcaster Broadcaster
	Displays    DisplayStore

	// Capture is passed to every camera.
	Capture ccd.Options

	// Address is the INDI server address reported in health messages.
	Address string

	// Version is the service version reported in health messages.
	Version string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	Logger Logger
	Now    func() time.Time
}

// camera is one ccd.Device and its media channel.
type camera struct {
	name   string
	dev    *ccd.Device
	media  *indi.MediaClient
	frames chan mediaFrame
	ctx    context.Context
	cancel context.CancelFunc
}

type mediaFrame struct {
	data []byte
	ext  string
}

// Bridge connects INDI cameras to MQTT, telemetry, the capture catalog and
// websocket clients.
//
// Thread Safety: the indi.Handler methods must only be called by the
// session. Every other method is safe for concurrent use.
type Bridge struct {
	opts    Options
	session Session
	topics  mqtt.Topics
	health  *HealthReporter
	logger  Logger
	now     func() time.Time

	// cameras is only touched on the dispatch goroutine.
	cameras map[string]*camera

	// names mirrors the keys of cameras for other goroutines.
	names   []string
	namesMu sync.RWMutex

	states   map[string]*StateMessage
	statesMu sync.Mutex

	// subscribed is set once Start holds the command subscription.
	subscribed atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ indi.Handler = (*Bridge)(nil)

// NewBridge creates a bridge. Attach it to the session with
// indi.Client.Start, then call Start.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("INDI session is required")
	}
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		opts:    opts,
		session: opts.Session,
		logger:  opts.Logger,
		now:     opts.Now,
		cameras: make(map[string]*camera),
		states:  make(map[string]*StateMessage),
		ctx:     ctx,
		cancel:  cancel,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Address:   opts.Address,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Session:   opts.Session,
		Now:       b.now,
	})
	b.health.SetLogger(b.logger)
	return b, nil
}

// Start subscribes to camera commands and starts health reporting. Without
// an MQTT client it does nothing.
func (b *Bridge) Start(ctx context.Context) error {
	if b.opts.MQTT == nil {
		return nil
	}
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	topic := b.topics.AllDeviceCommands()
	if err := b.opts.MQTT.Subscribe(topic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.subscribed.Store(true)
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)
	return nil
}

// Stop closes every camera, waiting for pending file writes, and stops
// health reporting.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.subscribed.Load() {
			if err := b.opts.MQTT.Unsubscribe(b.topics.AllDeviceCommands()); err != nil {
				b.logger.Warn("failed to unsubscribe from commands", "error", err)
			}
		}
		b.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := b.session.Exec(ctx, b.closeAll); err != nil {
			if errors.Is(err, indi.ErrClosed) {
				// The dispatch goroutine is gone; nothing else touches cameras.
				b.closeAll()
			} else {
				b.logger.Error("closing cameras failed", "error", err)
			}
		}

		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) closeAll() {
	for name := range b.cameras {
		b.removeCamera(name)
	}
}

// Names returns the names of the known cameras, sorted.
func (b *Bridge) Names() []string {
	b.namesMu.RLock()
	defer b.namesMu.RUnlock()
	return append([]string(nil), b.names...)
}

// Health returns the current bridge health.
func (b *Bridge) Health() HealthMessage {
	return b.health.Message()
}

// State returns the last published state of a camera.
func (b *Bridge) State(device string) (StateMessage, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	s, ok := b.states[device]
	if !ok {
		return StateMessage{}, false
	}
	return s.clone(), true
}

// propertySource is the part of *indi.Device the bridge needs.
type propertySource interface {
	ccd.Properties
	Properties() []indi.Property
}

// PropertyDefined implements indi.Handler.
func (b *Bridge) PropertyDefined(dev *indi.Device, p indi.Property) {
	b.propertyDefined(dev, p)
}

// PropertyRemoved implements indi.Handler.
func (b *Bridge) PropertyRemoved(dev *indi.Device, name string) {
	b.propertyRemoved(dev, name)
}

// NumberUpdated implements indi.Handler.
func (b *Bridge) NumberUpdated(dev *indi.Device, v *indi.NumberVector) {
	if cam := b.cameras[dev.Name()]; cam != nil {
		cam.dev.NumberUpdated(v)
	}
}

// SwitchUpdated implements indi.Handler.
func (b *Bridge) SwitchUpdated(dev *indi.Device, v *indi.SwitchVector) {
	if cam := b.cameras[dev.Name()]; cam != nil {
		cam.dev.SwitchUpdated(v)
	}
}

// TextUpdated implements indi.Handler.
func (b *Bridge) TextUpdated(dev *indi.Device, v *indi.TextVector) {
	if cam := b.cameras[dev.Name()]; cam != nil {
		cam.dev.TextUpdated(v)
	}
}

// BlobUpdated implements indi.Handler.
func (b *Bridge) BlobUpdated(dev *indi.Device, blob *indi.Blob) {
	if cam := b.cameras[dev.Name()]; cam != nil {
		cam.dev.BlobUpdated(blob)
	}
}

// propertyDefined creates the camera on the first camera property and
// replays every property the device already defined.
func (b *Bridge) propertyDefined(src propertySource, p indi.Property) {
	if cam := b.cameras[src.Name()]; cam != nil {
		cam.dev.PropertyDefined(p)
		return
	}
	if !isCameraProperty(p) {
		return
	}

	cam, err := b.addCamera(src)
	if err != nil {
		b.logger.Error("cannot create camera", "device", src.Name(), "error", err)
		return
	}
	for _, prop := range src.Properties() {
		cam.dev.PropertyDefined(prop)
	}
}

func (b *Bridge) propertyRemoved(src propertySource, name string) {
	cam := b.cameras[src.Name()]
	if cam == nil {
		return
	}
	cam.dev.PropertyRemoved(name)
	if len(src.Properties()) == 0 {
		b.removeCamera(src.Name())
	}
}

// isCameraProperty reports whether p identifies its device as a camera.
func isCameraProperty(p indi.Property) bool {
	switch p.Meta().Name {
	case "CCD_EXPOSURE", "CCD1", "CCD_INFO":
		return true
	case "DRIVER_INFO":
		v, ok := p.(*indi.TextVector)
		if !ok {
			return false
		}
		t := v.Find("DRIVER_INTERFACE")
		if t == nil {
			return false
		}
		iface, err := strconv.Atoi(t.Value)
		return err == nil && iface&driverInterfaceCCD != 0
	}
	return false
}

func (b *Bridge) addCamera(src ccd.Properties) (*camera, error) {
	cam := &camera{
		name:   src.Name(),
		frames: make(chan mediaFrame, mediaQueueSize),
	}
	cam.ctx, cam.cancel = context.WithCancel(b.ctx)
	cam.media = indi.NewMediaClient(cam.queueFrame, b.logger)

	var displays ccd.Displays
	if b.opts.Displays != nil {
		displays = b.opts.Displays
	}
	dev, err := ccd.NewDevice(ccd.Config{
		Properties: src,
		Decoder:    imaging.NewDecoder(),
		Notifier:   ccd.NotifierFunc(b.notify),
		Displays:   displays,
		Media:      cam.media,
		Options:    b.opts.Capture,
		Logger:     b.logger,
		Now:        b.now,
	})
	if err != nil {
		cam.cancel()
		return nil, err
	}
	cam.dev = dev

	b.cameras[cam.name] = cam
	b.syncNames()

	b.wg.Add(1)
	go b.pumpMedia(cam)

	b.logger.Info("camera added", "device", cam.name)
	return cam, nil
}

// removeCamera closes a camera. It runs on the dispatch goroutine, so the
// media pump is cancelled first to keep it from waiting on Exec.
func (b *Bridge) removeCamera(name string) {
	cam := b.cameras[name]
	if cam == nil {
		return
	}
	cam.cancel()
	cam.dev.Close()
	delete(b.cameras, name)
	b.syncNames()

	if b.opts.Displays != nil {
		b.opts.Displays.Forget(name)
	}
	b.statesMu.Lock()
	delete(b.states, name)
	b.statesMu.Unlock()

	b.logger.Info("camera removed", "device", name)
}

func (b *Bridge) syncNames() {
	names := make([]string, 0, len(b.cameras))
	for name := range b.cameras {
		names = append(names, name)
	}
	sort.Strings(names)

	b.namesMu.Lock()
	b.names = names
	b.namesMu.Unlock()
	b.health.SetCameraCount(len(names))
}

// queueFrame runs on the media read goroutine and never blocks.
func (c *camera) queueFrame(data []byte, ext string) {
	select {
	case c.frames <- mediaFrame{data: data, ext: ext}:
	default:
	}
}

// pumpMedia moves websocket media frames onto the dispatch goroutine.
func (b *Bridge) pumpMedia(cam *camera) {
	defer b.wg.Done()
	for {
		select {
		case <-cam.ctx.Done():
			return
		case f := <-cam.frames:
			err := b.session.Exec(cam.ctx, func() {
				if b.cameras[cam.name] == cam {
					cam.dev.MediaFrame(f.data, f.ext)
				}
			})
			if err != nil && cam.ctx.Err() == nil {
				b.logger.Debug("media frame dropped", "device", cam.name, "error", err)
			}
		}
	}
}

// Inspect runs fn with the named camera on the dispatch goroutine.
func (b *Bridge) Inspect(ctx context.Context, device string, fn func(dev *ccd.Device) error) error {
	if b.ctx.Err() != nil {
		return ErrStopped
	}
	var result error
	err := b.session.Exec(ctx, func() {
		cam := b.cameras[device]
		if cam == nil {
			result = fmt.Errorf("%w: %q", ErrUnknownDevice, device)
			return
		}
		result = fn(cam.dev)
	})
	if err != nil {
		return err
	}
	return result
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
