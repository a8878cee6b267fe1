package indiserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Status represents the state of the managed server.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	readyPollInterval = 100 * time.Millisecond
	dialTimeout       = 2 * time.Second

	// maxProbeFailures consecutive failed probes kill a hung server.
	maxProbeFailures = 3
)

var (
	// ErrAlreadyRunning is returned by Start while a server is supervised.
	ErrAlreadyRunning = errors.New("indiserver already running")

	// ErrExited records a server that exited with status 0 on its own.
	ErrExited = errors.New("indiserver exited")

	// ErrUnhealthy records a server killed after failed probes.
	ErrUnhealthy = errors.New("indiserver stopped accepting connections")
)

// Logger defines the logging interface for the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats describes the managed server.
type Stats struct {
	Status    Status    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	Address   string    `json:"address"`
	Drivers   []string  `json:"drivers"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Manager supervises one indiserver process.
type Manager struct {
	cfg    Config
	logger Logger

	mu         sync.RWMutex
	cmd        *exec.Cmd
	status     Status
	restarts   int
	lastErr    error
	startedAt  time.Time
	supervised bool
	stop       chan struct{}
	done       chan struct{}
}

// NewManager validates cfg and returns a stopped manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Address returns the local address the server listens on.
func (m *Manager) Address() string {
	return net.JoinHostPort("localhost", strconv.Itoa(m.cfg.Port))
}

// Start launches indiserver and blocks until its port accepts connections.
// The server is supervised until Stop is called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.supervised {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.status = StatusStarting
	m.lastErr = nil
	m.restarts = 0
	m.mu.Unlock()

	cmd, err := m.startProcess()
	if err != nil {
		m.recordFailure(err)
		return err
	}

	m.mu.Lock()
	m.supervised = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.monitor(ctx, cmd)

	if err := m.waitForReady(ctx); err != nil {
		m.Stop() //nolint:errcheck // Start error takes precedence
		return err
	}
	m.logger.Info("indiserver ready", "address", m.Address(), "drivers", m.cfg.Drivers)
	return nil
}

// startProcess forks indiserver in its own process group.
func (m *Manager) startProcess() (*exec.Cmd, error) {
	args := m.cfg.Args()
	m.logger.Info("starting indiserver", "binary", m.cfg.Binary, "args", args)

	cmd := exec.Command(m.cfg.Binary, args...) //nolint:gosec // Binary and drivers are validated in Config.Validate
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting indiserver: %w", err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("indiserver started", "pid", cmd.Process.Pid)
	return cmd, nil
}

// captureOutput logs each line the server writes. indiserver reports
// driver traffic and client connections on stderr.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("indiserver output", "stream", stream, "line", scanner.Text())
	}
}

// monitor supervises cmd and its replacements until stopped or out of
// restart attempts.
func (m *Manager) monitor(ctx context.Context, cmd *exec.Cmd) {
	defer func() {
		m.mu.Lock()
		m.supervised = false
		m.mu.Unlock()
		close(m.done)
	}()

	for {
		if cmd != nil {
			stopped, err := m.supervise(ctx, cmd)
			if stopped {
				m.setStatus(StatusStopped)
				m.logger.Info("indiserver stopped")
				return
			}
			if err == nil {
				err = ErrExited
			}
			m.logger.Warn("indiserver exited unexpectedly", "error", err)
			m.recordFailure(err)
		}

		if !m.cfg.RestartOnFailure {
			return
		}

		m.mu.Lock()
		if m.cfg.MaxRestartAttempts > 0 && m.restarts >= m.cfg.MaxRestartAttempts {
			m.mu.Unlock()
			m.logger.Error("indiserver restart attempts exhausted", "attempts", m.cfg.MaxRestartAttempts)
			return
		}
		m.restarts++
		attempt := m.restarts
		m.mu.Unlock()

		m.logger.Info("restarting indiserver", "attempt", attempt, "delay", m.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			m.setStatus(StatusStopped)
			return
		case <-m.stop:
			m.setStatus(StatusStopped)
			return
		case <-time.After(m.cfg.RestartDelay):
		}

		var err error
		if cmd, err = m.startProcess(); err != nil {
			m.logger.Error("failed to restart indiserver", "error", err)
			m.recordFailure(err)
		}
	}
}

// supervise waits for cmd to exit while probing its port. stopped is true
// when the exit was requested through Stop or ctx.
func (m *Manager) supervise(ctx context.Context, cmd *exec.Cmd) (stopped bool, err error) {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return false, err

		case <-m.stop:
			return true, m.terminate(cmd, exitCh)

		case <-ctx.Done():
			return true, m.terminate(cmd, exitCh)

		case <-ticker.C:
			if err := m.probe(ctx); err != nil {
				failures++
				m.logger.Warn("indiserver probe failed", "error", err, "consecutive_failures", failures)
				if failures < maxProbeFailures {
					continue
				}
				m.logger.Error("indiserver unresponsive, killing", "failures", failures)
				signalGroup(cmd, syscall.SIGKILL)
				<-exitCh
				return false, fmt.Errorf("%w: %d failed probes", ErrUnhealthy, failures)
			}
			if failures > 0 {
				m.logger.Info("indiserver probe recovered", "previous_failures", failures)
			}
			failures = 0
		}
	}
}

// terminate sends SIGTERM to the process group, escalating to SIGKILL
// after the graceful timeout.
func (m *Manager) terminate(cmd *exec.Cmd, exitCh <-chan error) error {
	m.logger.Info("stopping indiserver", "pid", cmd.Process.Pid)
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case err := <-exitCh:
		return err
	case <-time.After(m.cfg.GracefulTimeout):
		m.logger.Warn("indiserver ignored SIGTERM, sending SIGKILL", "timeout", m.cfg.GracefulTimeout)
	}
	signalGroup(cmd, syscall.SIGKILL)
	return <-exitCh
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	// Negative pid addresses the group created by Setpgid, drivers included.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		cmd.Process.Signal(sig) //nolint:errcheck // Best effort when the group is gone
	}
}

// probe checks that the server accepts TCP connections.
func (m *Manager) probe(ctx context.Context) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}

// waitForReady polls the port until it accepts a connection. A server
// that exits during the wait is restarted by monitor when configured to.
func (m *Manager) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(m.cfg.ReadyTimeout)
	for {
		if err := m.probe(ctx); err == nil {
			return nil
		}

		m.mu.RLock()
		supervised, lastErr := m.supervised, m.lastErr
		m.mu.RUnlock()
		if !supervised {
			if lastErr != nil {
				return fmt.Errorf("indiserver exited before accepting connections: %w", lastErr)
			}
			return errors.New("indiserver exited before accepting connections")
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for indiserver on %s after %v", m.Address(), m.cfg.ReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for indiserver: %w", ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.status = StatusFailed
	m.lastErr = err
	m.mu.Unlock()
}

// Stop terminates the server and waits for supervision to end.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.supervised || m.stop == nil {
		m.mu.Unlock()
		return nil
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// Status returns the current status of the server.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the server process is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// HealthCheck verifies the server is running and accepting connections.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if !m.IsRunning() {
		return fmt.Errorf("indiserver is %s", m.Status())
	}
	return m.probe(ctx)
}

// Stats returns a snapshot of the server state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Status:   m.status,
		Address:  m.Address(),
		Drivers:  append([]string(nil), m.cfg.Drivers...),
		Restarts: m.restarts,
	}
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		s.PID = m.cmd.Process.Pid
		s.StartedAt = m.startedAt
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}
