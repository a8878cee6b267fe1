package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic INDI core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	INDI      INDIConfig      `yaml:"indi"`
	Capture   CaptureConfig   `yaml:"capture"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains the observatory's geographic coordinates.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// INDIConfig contains INDI server connection settings.
type INDIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Devices limits the session to the named cameras. Empty means every
	// device the server announces.
	Devices []string `yaml:"devices"`

	// BlobMode is sent as enableBLOB for each device: "Never", "Also" or "Only".
	BlobMode string `yaml:"blob_mode"`

	// ConnectTimeout and ReconnectInterval are in seconds.
	ConnectTimeout    int `yaml:"connect_timeout"`
	ReconnectInterval int `yaml:"reconnect_interval"`

	// HealthInterval is the bridge heartbeat period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// Server optionally runs a local indiserver with the given drivers.
	Server INDIServerConfig `yaml:"server"`
}

// INDIServerConfig controls the managed indiserver process.
type INDIServerConfig struct {
	// Managed starts indiserver as a child process on indi.port.
	Managed bool   `yaml:"managed"`
	Binary  string `yaml:"binary"`

	// Drivers are the driver executables passed to indiserver,
	// e.g. "indi_simulator_ccd".
	Drivers []string `yaml:"drivers"`

	// Verbosity adds -v flags (0-3).
	Verbosity int `yaml:"verbosity"`

	RestartOnFailure   bool `yaml:"restart_on_failure"`
	RestartDelay       int  `yaml:"restart_delay"` // seconds
	MaxRestartAttempts int  `yaml:"max_restart_attempts"`

	// ReadyTimeout bounds the wait for the port to accept connections, in seconds.
	ReadyTimeout int `yaml:"ready_timeout"`
}

// CaptureConfig contains capture and preview settings.
type CaptureConfig struct {
	Directory     string `yaml:"directory"`
	TempDirectory string `yaml:"temp_directory"`

	// MediaHost is the host of the driver's websocket media channel.
	MediaHost string `yaml:"media_host"`

	ForceDSLRPresets          bool `yaml:"force_dslr_presets"`
	UseFITSViewer             bool `yaml:"use_fits_viewer"`
	UseSummaryPreview         bool `yaml:"use_summary_preview"`
	SinglePreviewTab          bool `yaml:"single_preview_tab"`
	SingleWindowForAllDevices bool `yaml:"single_window_for_all_devices"`
	AutoConvertToFITS         bool `yaml:"auto_convert_to_fits"`
	UseExternalImageViewer    bool `yaml:"use_external_image_viewer"`
	FocusViewerOnNewImage     bool `yaml:"focus_viewer_on_new_image"`

	// HashFiles records a content hash for each capture in the catalog.
	HashFiles bool `yaml:"hash_files"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_INDI_HOST, GRAYLOGIC_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "observatory-001",
			Name:     "Gray Logic Observatory",
			Timezone: "UTC",
		},
		INDI: INDIConfig{
			Host:              "localhost",
			Port:              7624,
			BlobMode:          "Also",
			ConnectTimeout:    10,
			ReconnectInterval: 5,
			HealthInterval:    30,
			Server: INDIServerConfig{
				Binary:             "indiserver",
				RestartOnFailure:   true,
				RestartDelay:       5,
				MaxRestartAttempts: 10,
				ReadyTimeout:       10,
			},
		},
		Capture: CaptureConfig{
			Directory:        "./data/captures",
			MediaHost:        "localhost",
			UseFITSViewer:    true,
			SinglePreviewTab: true,
			HashFiles:        true,
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-indi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-indi",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "indi",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// INDI
	if v := os.Getenv("GRAYLOGIC_INDI_HOST"); v != "" {
		cfg.INDI.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_INDI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.INDI.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_INDI_DEVICES"); v != "" {
		cfg.INDI.Devices = splitList(v)
	}
	if v := os.Getenv("GRAYLOGIC_INDI_SERVER_MANAGED"); v != "" {
		cfg.INDI.Server.Managed = v == "true" || v == "1"
	}
	if v := os.Getenv("GRAYLOGIC_INDI_SERVER_DRIVERS"); v != "" {
		cfg.INDI.Server.Drivers = splitList(v)
	}

	// Capture
	if v := os.Getenv("GRAYLOGIC_CAPTURE_DIRECTORY"); v != "" {
		cfg.Capture.Directory = v
	}
	if v := os.Getenv("GRAYLOGIC_CAPTURE_MEDIA_HOST"); v != "" {
		cfg.Capture.MediaHost = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// INDI validation
	if c.INDI.Host == "" {
		errs = append(errs, "indi.host is required")
	}
	if c.INDI.Port < 1 || c.INDI.Port > 65535 {
		errs = append(errs, "indi.port must be between 1 and 65535")
	}
	switch c.INDI.BlobMode {
	case "Never", "Also", "Only":
	default:
		errs = append(errs, "indi.blob_mode must be Never, Also, or Only")
	}
	if c.INDI.Server.Managed {
		if c.INDI.Server.Binary == "" {
			errs = append(errs, "indi.server.binary is required when the server is managed")
		}
		if len(c.INDI.Server.Drivers) == 0 {
			errs = append(errs, "indi.server.drivers must list at least one driver")
		}
		if c.INDI.Server.Verbosity < 0 || c.INDI.Server.Verbosity > 3 {
			errs = append(errs, "indi.server.verbosity must be between 0 and 3")
		}
	}

	if c.Capture.Directory == "" {
		errs = append(errs, "capture.directory is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// INDIAddress returns the INDI server address as "host:port".
func (c *Config) INDIAddress() string {
	return fmt.Sprintf("%s:%d", c.INDI.Host, c.INDI.Port)
}

// GetConnectTimeout returns the INDI dial timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.INDI.ConnectTimeout) * time.Second
}

// GetReconnectInterval returns the initial INDI reconnect delay as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.INDI.ReconnectInterval) * time.Second
}

// GetServerRestartDelay returns the managed indiserver restart delay as a Duration.
func (c *Config) GetServerRestartDelay() time.Duration {
	return time.Duration(c.INDI.Server.RestartDelay) * time.Second
}

// GetServerReadyTimeout returns how long to wait for a managed indiserver
// to accept connections.
func (c *Config) GetServerReadyTimeout() time.Duration {
	return time.Duration(c.INDI.Server.ReadyTimeout) * time.Second
}

// GetHealthInterval returns the bridge heartbeat period as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.INDI.HealthInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
