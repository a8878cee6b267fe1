package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-indi/internal/preview"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Cameras is the camera bridge. *camera.Bridge satisfies it.
type Cameras interface {
	Names() []string
	State(device string) (camera.StateMessage, bool)
	Health() camera.HealthMessage
	Execute(ctx context.Context, cmd camera.CommandMessage) error
	Inspect(ctx context.Context, device string, fn func(dev *ccd.Device) error) error
}

// Previews serves rendered displays. *preview.Store satisfies it.
type Previews interface {
	Tabs(device string) ([]preview.Tab, error)
	TabPNG(device string, tab int) ([]byte, error)
	ChipViewPNG(device, chip, mode string) ([]byte, error)
	CloseTab(device string, tab int) error
	Stream(device string) (preview.StreamInfo, error)
	LatestFrame(device string) ([]byte, string, error)
	HideStream(device string) error
}

// StateSource delivers retained camera states. *mqtt.Client satisfies it.
type StateSource interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DBStats reports connection pool statistics. *database.DB satisfies it.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Cameras  Cameras
	Previews Previews           // optional
	Captures catalog.Repository // optional
	MQTT     StateSource        // optional
	DB       DBStats            // optional

	// ExternalHub is used instead of creating a hub, so the bridge can
	// broadcast through it.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	cameras     Cameras
	previews    Previews
	captures    catalog.Repository
	mqtt        StateSource
	db          DBStats
	version     string
	now         func() time.Time
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Cameras == nil {
		return nil, fmt.Errorf("camera bridge is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		cameras:   deps.Cameras,
		previews:  deps.Previews,
		captures:  deps.Captures,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		now:       time.Now,
		startTime: time.Now(),
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub unless one was injected, relays retained
// camera states from MQTT to WebSocket clients, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	if err := s.subscribeStateUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to state updates for WebSocket", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
