package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	INDI          *INDIMetrics    `json:"indi,omitempty"`
	Cameras       CameraMetrics   `json:"cameras"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// INDIMetrics contains INDI session statistics.
type INDIMetrics struct {
	Address    string `json:"address"`
	Connected  bool   `json:"connected"`
	Status     string `json:"status"`
	MessagesRx uint64 `json:"messages_rx"`
	MessagesTx uint64 `json:"messages_tx"`
	BlobsRx    uint64 `json:"blobs_rx"`
	Errors     uint64 `json:"errors"`
	Reconnects uint64 `json:"reconnects"`
	Devices    int    `json:"devices"`
}

// CameraMetrics aggregates the published camera states.
type CameraMetrics struct {
	Total     int `json:"total"`
	Streaming int `json:"streaming"`
	Recording int `json:"recording"`
	Captures  int `json:"captures"`
	Failures  int `json:"failures"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Build metrics response
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}
	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	// MQTT metrics (if available)
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	health := s.cameras.Health()
	if c := health.Connection; c != nil {
		metrics.INDI = &INDIMetrics{
			Address:    c.Address,
			Connected:  c.Connected,
			Status:     string(health.Status),
			MessagesRx: c.MessagesRx,
			MessagesTx: c.MessagesTx,
			BlobsRx:    c.BlobsRx,
			Errors:     c.Errors,
			Reconnects: c.Reconnects,
			Devices:    c.Devices,
		}
	}

	for _, name := range s.cameras.Names() {
		metrics.Cameras.Total++
		state, ok := s.cameras.State(name)
		if !ok {
			continue
		}
		if state.Streaming {
			metrics.Cameras.Streaming++
		}
		if state.Recording {
			metrics.Cameras.Recording++
		}
		metrics.Cameras.Captures += state.Captures
		metrics.Cameras.Failures += state.Failures
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
