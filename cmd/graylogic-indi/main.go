// Gray Logic INDI - camera control service
//
// This is the main entry point of the INDI camera service. It connects to
// an INDI server, drives every camera the server announces, and exposes
// them over MQTT, a REST API and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-indi/migrations"

	"github.com/nerrad567/gray-logic-indi/internal/api"
	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
	"github.com/nerrad567/gray-logic-indi/internal/catalog"
	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
	"github.com/nerrad567/gray-logic-indi/internal/indiserver"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-indi/internal/preview"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// dispatchTimeout bounds a display callback waiting for the INDI session.
const dispatchTimeout = 5 * time.Second

func main() {
	flags := pflag.NewFlagSet("graylogic-indi", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
	showVersion := flags.BoolP("version", "v", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Printf("graylogic-indi %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting Gray Logic INDI",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Capture catalog
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	captures := catalog.NewSQLiteRepository(db.DB)
	recorder := catalog.NewRecorder(captures, catalog.RecorderOptions{
		HashFiles: cfg.Capture.HashFiles,
		Logger:    log,
	})
	recorder.Start()
	defer recorder.Close()

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection",
				"bucket", stats.Bucket,
				"points", stats.Points,
				"write_errors", stats.WriteErrors,
			)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Managed indiserver (optional)
	var server *indiserver.Manager
	if cfg.INDI.Server.Managed {
		server, err = startINDIServer(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if stopErr := server.Stop(); stopErr != nil {
				log.Error("error stopping indiserver", "error", stopErr)
			}
		}()
	}

	// INDI session
	client, err := indi.Dial(ctx, indi.Config{
		Address:           cfg.INDIAddress(),
		ConnectTimeout:    cfg.GetConnectTimeout(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		Devices:           cfg.INDI.Devices,
		BlobMode:          indi.BlobMode(cfg.INDI.BlobMode),
	})
	if err != nil {
		return fmt.Errorf("connecting to INDI server: %w", err)
	}
	client.SetLogger(log)
	defer func() {
		log.Info("closing INDI session")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing INDI session", "error", closeErr)
		}
	}()
	log.Info("INDI server connected", "address", cfg.INDIAddress())

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	previews := preview.New(preview.Options{
		Dispatch: func(device string, fn func()) {
			execCtx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			if execErr := client.Exec(execCtx, fn); execErr != nil {
				log.Warn("display callback dropped", "device", device, "error", execErr)
			}
		},
	})

	bridge, err := camera.NewBridge(bridgeOptions(cfg, client, mqttClient, influxClient, recorder, hub, previews, log))
	if err != nil {
		return fmt.Errorf("creating camera bridge: %w", err)
	}
	// Cameras are closed before the session so pending writes complete.
	defer func() {
		log.Info("stopping camera bridge")
		bridge.Stop()
	}()

	if err := client.Start(ctx, bridge); err != nil {
		return fmt.Errorf("starting INDI session: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting camera bridge: %w", err)
	}
	log.Info("camera bridge started")

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Cameras:     bridge,
		Previews:    previews,
		Captures:    captures,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, camera bridge,
	// INDI session, indiserver, InfluxDB, MQTT, capture recorder, database.
	return nil
}

// startINDIServer launches the managed indiserver on the configured port
// and waits until it accepts connections.
func startINDIServer(ctx context.Context, cfg *config.Config, log *logging.Logger) (*indiserver.Manager, error) {
	server, err := indiserver.NewManager(indiserver.Config{
		Binary:             cfg.INDI.Server.Binary,
		Port:               cfg.INDI.Port,
		Drivers:            cfg.INDI.Server.Drivers,
		Verbosity:          cfg.INDI.Server.Verbosity,
		RestartOnFailure:   cfg.INDI.Server.RestartOnFailure,
		RestartDelay:       cfg.GetServerRestartDelay(),
		MaxRestartAttempts: cfg.INDI.Server.MaxRestartAttempts,
		ReadyTimeout:       cfg.GetServerReadyTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("configuring indiserver: %w", err)
	}
	server.SetLogger(log)
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting indiserver: %w", err)
	}
	log.Info("indiserver running", "address", server.Address(), "drivers", cfg.INDI.Server.Drivers)
	return server, nil
}

// bridgeOptions assembles the camera bridge collaborators. Disabled
// services are left as nil interfaces.
func bridgeOptions(
	cfg *config.Config,
	client *indi.Client,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	recorder *catalog.Recorder,
	hub *api.Hub,
	previews *preview.Store,
	log *logging.Logger,
) camera.Options {
	opts := camera.Options{
		Session:     client,
		Recorder:    recorder,
		Broadcaster: hub,
		Displays:    previews,
		Capture: ccd.Options{
			ForceDSLRPresets:          cfg.Capture.ForceDSLRPresets,
			UseFITSViewer:             cfg.Capture.UseFITSViewer,
			UseSummaryPreview:         cfg.Capture.UseSummaryPreview,
			SinglePreviewTab:          cfg.Capture.SinglePreviewTab,
			SingleWindowForAllDevices: cfg.Capture.SingleWindowForAllDevices,
			AutoConvertImageToFITS:    cfg.Capture.AutoConvertToFITS,
			UseExternalImageViewer:    cfg.Capture.UseExternalImageViewer,
			DefaultCaptureDirectory:   cfg.Capture.Directory,
			FocusViewerOnNewImage:     cfg.Capture.FocusViewerOnNewImage,
			TempDirectory:             cfg.Capture.TempDirectory,
			MediaHost:                 cfg.Capture.MediaHost,
		},
		Address:        cfg.INDIAddress(),
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		Logger:         log,
	}
	if mqttClient != nil {
		opts.MQTT = mqttClient
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	return opts
}

// getConfigPath returns the configuration file path: the flag value, then
// GRAYLOGIC_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections. The indiserver,
// MQTT and InfluxDB may be nil when not in use.
func healthCheck(ctx context.Context, db *database.DB, server *indiserver.Manager, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if server != nil {
		if err := server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("indiserver: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
