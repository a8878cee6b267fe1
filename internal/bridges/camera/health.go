package camera

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SessionStats reports the state of the INDI session.
type SessionStats interface {
	IsConnected() bool
	Stats() indi.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Address is the INDI server address.
	Address string

	// Version is the service version.
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client. Without it nothing is published.
	Publisher HealthPublisher

	// Session provides connection statistics.
	Session SessionStats

	// Now defaults to time.Now.
	Now func() time.Time
}

// HealthReporter publishes the bridge status periodically.
type HealthReporter struct {
	address   string
	version   string
	interval  time.Duration
	publisher HealthPublisher
	session   SessionStats
	now       func() time.Time
	startTime time.Time
	topics    mqtt.Topics

	cameraCount   int
	cameraCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	startMu  sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	h := &HealthReporter{
		address:   cfg.Address,
		version:   cfg.Version,
		interval:  interval,
		publisher: cfg.Publisher,
		session:   cfg.Session,
		now:       now,
		startTime: now(),
		done:      make(chan struct{}),
	}
	return h
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status. Safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetCameraCount updates the reported camera count.
func (h *HealthReporter) SetCameraCount(n int) {
	h.cameraCountMu.Lock()
	h.cameraCount = n
	h.cameraCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Message builds the current health message.
func (h *HealthReporter) Message() HealthMessage {
	status, reason := h.determineStatus()
	return h.buildMessage(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher != nil && !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.session == nil || !h.session.IsConnected() {
		return HealthDegraded, "INDI server disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	h.cameraCountMu.RLock()
	cameras := h.cameraCount
	h.cameraCountMu.RUnlock()

	now := h.now()
	msg := HealthMessage{
		Bridge:     mqtt.Protocol,
		Status:     status,
		Reason:     reason,
		Version:    h.version,
		Timestamp:  now.UTC(),
		UptimeSecs: int64(now.Sub(h.startTime).Seconds()),
		Cameras:    cameras,
	}
	if h.session != nil {
		stats := h.session.Stats()
		msg.Connection = &ConnectionInfo{
			Address:      h.address,
			Connected:    stats.Connected,
			MessagesRx:   stats.MessagesRx,
			MessagesTx:   stats.MessagesTx,
			BlobsRx:      stats.BlobsRx,
			Errors:       stats.ErrorsTotal,
			Reconnects:   stats.ReconnectsTotal,
			Devices:      stats.Devices,
			LastActivity: stats.LastActivity,
		}
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
