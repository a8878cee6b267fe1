package indi

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for the INDI session.
const (
	// defaultConnectTimeout is the maximum time to wait for the TCP dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single command write.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// inboxSize is the number of decoded messages buffered ahead of dispatch.
	inboxSize = 64

	// readBufferSize is the buffered reader size; BLOB messages are large.
	readBufferSize = 64 * 1024
)

// Config holds INDI server connection configuration.
type Config struct {
	// Address is the server address, "host:port". Default port is 7624.
	Address string

	// ConnectTimeout is the maximum time to wait for the dial.
	ConnectTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	ReconnectInterval time.Duration

	// Devices limits getProperties to the named devices. Empty means all.
	Devices []string

	// BlobMode is sent as enableBLOB for every device when it first appears.
	// Default: Also.
	BlobMode BlobMode
}

// Stats holds operational statistics.
type Stats struct {
	MessagesRx      uint64
	MessagesTx      uint64
	BlobsRx         uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	Devices         int
	LastActivity    time.Time
	Connected       bool
}

// Handler receives property events. All methods are called from the
// client's dispatch goroutine, one at a time, in arrival order.
type Handler interface {
	PropertyDefined(dev *Device, p Property)
	PropertyRemoved(dev *Device, name string)
	NumberUpdated(dev *Device, v *NumberVector)
	SwitchUpdated(dev *Device, v *SwitchVector)
	TextUpdated(dev *Device, v *TextVector)
	BlobUpdated(dev *Device, b *Blob)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is a session with an INDI server.
//
// Thread Safety:
//   - Exported methods are safe for concurrent use.
//   - Handler callbacks and Exec funcs run on a single dispatch goroutine.
//
// Auto-Reconnection:
//   - When the connection is lost every known property is removed (the
//     handler sees PropertyRemoved) and the client reconnects with
//     exponential backoff starting at ReconnectInterval up to 2 minutes.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg     Config
	handler Handler

	conn      net.Conn
	connMu    sync.RWMutex
	connected bool
	writeMu   sync.Mutex

	// Dispatch goroutine inputs.
	inbox chan *message
	execs chan func()

	// devices is only touched by the dispatch goroutine.
	devices     map[string]*Device
	deviceCount atomic.Int32

	startOnce sync.Once
	done      *closeOnce
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	messagesRx      atomic.Uint64
	messagesTx      atomic.Uint64
	blobsRx         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Dial connects to the INDI server. No messages are exchanged until Start
// is called, so that a handler can be attached without missing definitions.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.BlobMode == "" {
		cfg.BlobMode = BlobAlso
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrConnectionFailed)
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		cfg.Address = net.JoinHostPort(cfg.Address, "7624")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	return newClient(cfg, conn), nil
}

// newClient wraps an established connection.
func newClient(cfg Config, conn net.Conn) *Client {
	if cfg.BlobMode == "" {
		cfg.BlobMode = BlobAlso
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	c := &Client{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		inbox:     make(chan *message, inboxSize),
		execs:     make(chan func()),
		devices:   make(map[string]*Device),
		done:      newCloseOnce(),
	}
	c.lastActivity.Store(time.Now().Unix())
	return c
}

// Start attaches the handler, requests the property definitions and starts
// the receive and dispatch goroutines. It may only be called once.
func (c *Client) Start(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.New("indi: handler is required")
	}
	err := ErrClosed
	c.startOnce.Do(func() {
		c.handler = h
		if err = c.requestProperties(ctx); err != nil {
			return
		}
		c.wg.Add(2)
		go c.dispatchLoop()
		go c.receiveLoop()
	})
	return err
}

// requestProperties sends getProperties for the configured devices.
func (c *Client) requestProperties(ctx context.Context) error {
	devices := c.cfg.Devices
	if len(devices) == 0 {
		devices = []string{""}
	}
	for _, dev := range devices {
		payload, err := encodeGetProperties(dev)
		if err != nil {
			return err
		}
		if err := c.write(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs fn on the dispatch goroutine and waits for it to return. It
// must not be called from a Handler callback.
func (c *Client) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case c.execs <- wrapped:
	case <-c.done.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiveLoop decodes protocol messages and queues them for dispatch.
// On connection loss it queues a reset and reconnects.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		err := c.readFrom(conn)
		if c.isClosed() {
			return
		}

		c.logError("connection lost", err)
		c.errorsTotal.Add(1)
		c.handleDisconnect()

		if !c.enqueue(&message{op: opReset}) {
			return
		}
		if !c.reconnect() {
			return
		}
	}
}

// readFrom reads messages from conn until an error occurs.
func (c *Client) readFrom(conn net.Conn) error {
	dec := xml.NewDecoder(bufio.NewReaderSize(conn, readBufferSize))
	dec.Strict = false

	for {
		msg, err := readMessage(dec)
		if err != nil {
			if errors.Is(err, ErrInvalidMessage) {
				// The element was consumed completely; the stream is still framed.
				c.logError("dropping malformed message", err)
				c.errorsTotal.Add(1)
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("server closed connection: %w", err)
			}
			return err
		}
		if msg == nil {
			continue
		}

		c.messagesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		if !c.enqueue(msg) {
			return ErrClosed
		}
	}
}

// enqueue hands a message to the dispatch goroutine. Protocol messages are
// never dropped; a slow handler applies back-pressure to the socket.
func (c *Client) enqueue(msg *message) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.done.Done():
		return false
	}
}

// dispatchLoop applies messages to the store and runs Exec funcs.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case msg := <-c.inbox:
			c.safely("message handler", func() { c.apply(msg) })
		case fn := <-c.execs:
			c.safely("exec", fn)
		}
	}
}

// deliverBlob hands data to the handler. Payloads are only valid during the
// callback and are released even if it panics.
func (c *Client) deliverBlob(dev *Device, b *Blob, data []byte) {
	b.Data = data
	defer func() { b.Data = nil }()
	c.handler.BlobUpdated(dev, b)
}

// safely runs fn, recovering and logging panics.
func (c *Client) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.errorsTotal.Add(1)
			c.logError(what+" panic", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// apply performs one message against the store and notifies the handler.
func (c *Client) apply(msg *message) {
	switch msg.op {
	case opMessage:
		if msg.text != "" {
			c.logInfo("device message", "device", msg.device, "message", msg.text)
		}
	case opDelete:
		c.applyDelete(msg.device, msg.name)
	case opReset:
		// Devices are rediscovered from scratch after a reconnect,
		// including enableBLOB.
		c.applyDelete("", "")
		c.devices = make(map[string]*Device)
		c.deviceCount.Store(0)
	case opDefine:
		dev := c.device(msg.device)
		dev.define(msg.prop)
		c.handler.PropertyDefined(dev, msg.prop)
	case opSet:
		dev, ok := c.devices[msg.device]
		if !ok {
			c.logDebug("set for unknown device", "device", msg.device, "property", msg.name)
			return
		}
		c.applySet(dev, msg.prop)
	}
}

// device returns the store for name, creating it (and enabling BLOB
// delivery) on first sight.
func (c *Client) device(name string) *Device {
	if dev, ok := c.devices[name]; ok {
		return dev
	}
	dev := NewDevice(name, c.write)
	c.devices[name] = dev
	c.deviceCount.Store(int32(len(c.devices)))

	if err := dev.SetBlobMode(c.cfg.BlobMode, ""); err != nil {
		c.logError("enableBLOB failed", err)
	}
	c.logInfo("device discovered", "device", name)
	return dev
}

// applyDelete removes one property, every property of one device, or (with
// an empty device) everything.
func (c *Client) applyDelete(device, name string) {
	for devName, dev := range c.devices {
		if device != "" && devName != device {
			continue
		}
		if name != "" {
			if dev.remove(name) {
				c.handler.PropertyRemoved(dev, name)
			}
			continue
		}
		for _, n := range dev.names() {
			dev.remove(n)
			c.handler.PropertyRemoved(dev, n)
		}
	}
}

// applySet copies the values carried by an update into the stored vector.
func (c *Client) applySet(dev *Device, update Property) {
	meta := update.Meta()
	switch u := update.(type) {
	case *NumberVector:
		v := dev.Number(meta.Name)
		if v == nil {
			return
		}
		mergeMeta(&v.Vector, meta)
		for _, n := range u.Numbers {
			if cur := v.Find(n.Name); cur != nil {
				cur.Value = n.Value
			}
		}
		c.handler.NumberUpdated(dev, v)
	case *SwitchVector:
		v := dev.Switch(meta.Name)
		if v == nil {
			return
		}
		mergeMeta(&v.Vector, meta)
		for _, s := range u.Switches {
			if cur := v.Find(s.Name); cur != nil {
				cur.On = s.On
			}
		}
		c.handler.SwitchUpdated(dev, v)
	case *TextVector:
		v := dev.Text(meta.Name)
		if v == nil {
			return
		}
		mergeMeta(&v.Vector, meta)
		for _, t := range u.Texts {
			if cur := v.Find(t.Name); cur != nil {
				cur.Value = t.Value
			}
		}
		c.handler.TextUpdated(dev, v)
	case *BlobVector:
		v := dev.Blob(meta.Name)
		if v == nil {
			return
		}
		mergeMeta(&v.Vector, meta)
		for _, b := range u.Blobs {
			cur := v.Find(b.Name)
			if cur == nil {
				continue
			}
			cur.Format = b.Format
			cur.Size = b.Size
			c.blobsRx.Add(1)
			c.deliverBlob(dev, cur, b.Data)
		}
	case *LightVector:
		v, ok := dev.Property(meta.Name).(*LightVector)
		if !ok {
			return
		}
		mergeMeta(&v.Vector, meta)
		for name, state := range u.Lights {
			v.Lights[name] = state
		}
	}
}

// mergeMeta applies the attributes a set*Vector may carry.
func mergeMeta(dst, src *Vector) {
	if src.State != "" {
		dst.State = src.State
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if src.Timestamp != "" {
		dst.Timestamp = src.Timestamp
	}
}

// write sends a payload with a deadline.
func (c *Client) write(ctx context.Context, payload []byte) error {
	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.messagesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// handleDisconnect marks the connection as lost.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
}

// reconnect re-dials the server with exponential backoff and re-requests
// the properties. It returns false if the client was closed meanwhile.
func (c *Client) reconnect() bool {
	backoff := c.cfg.ReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return false
		case <-time.After(backoff):
		}

		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
		cancel()
		if err != nil {
			c.logError("reconnect: dial failed", err)
			c.errorsTotal.Add(1)
			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		ctx, cancel = context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err = c.requestProperties(ctx)
		cancel()
		if err != nil {
			c.logError("reconnect: getProperties failed", err)
			c.handleDisconnect()
			continue
		}

		c.reconnectsTotal.Add(1)
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the session and waits for the goroutines to exit.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logInfo("connection closed")
	return nil
}

// IsConnected returns true if connected to the server.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		MessagesRx:      c.messagesRx.Load(),
		MessagesTx:      c.messagesTx.Load(),
		BlobsRx:         c.blobsRx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		Devices:         int(c.deviceCount.Load()),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
