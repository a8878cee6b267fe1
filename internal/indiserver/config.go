package indiserver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings of a managed indiserver.
type Config struct {
	// Binary is the indiserver executable.
	Binary string

	// Port is passed as -p and probed for readiness.
	Port int

	// Drivers are the driver executables indiserver forks.
	Drivers []string

	// Verbosity adds -v, -vv or -vvv.
	Verbosity int

	RestartOnFailure bool
	RestartDelay     time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// ReadyTimeout bounds the wait for the port to accept connections.
	ReadyTimeout time.Duration

	// HealthCheckInterval is how often the port is probed while running.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns a Config for the standard INDI port.
func DefaultConfig(drivers ...string) Config {
	return Config{
		Binary:              "indiserver",
		Port:                7624,
		Drivers:             drivers,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		ReadyTimeout:        10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// driverPattern admits executable names and absolute paths, nothing a
// shell would interpret.
var driverPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-./]+$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Binary == "" {
		errs = append(errs, "binary is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if len(c.Drivers) == 0 {
		errs = append(errs, "at least one driver is required")
	}
	for _, d := range c.Drivers {
		if !driverPattern.MatchString(d) || strings.HasPrefix(d, "-") {
			errs = append(errs, fmt.Sprintf("driver %q contains invalid characters", d))
		}
	}
	if c.Verbosity < 0 || c.Verbosity > 3 {
		errs = append(errs, "verbosity must be between 0 and 3")
	}

	if len(errs) > 0 {
		return errors.New("invalid indiserver config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Args returns the indiserver command line, drivers last.
func (c *Config) Args() []string {
	args := []string{"-p", strconv.Itoa(c.Port)}
	if c.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", c.Verbosity))
	}
	return append(args, c.Drivers...)
}
