package indi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultMediaExtension is used until the server announces a format.
const defaultMediaExtension = ".fits"

// MediaClient receives image frames over the websocket side channel some
// drivers offer (CCD_WEBSOCKET_SETTINGS). The server sends a text message
// with the file extension followed by binary messages with the payloads.
//
// Frames are delivered to the callback on the client's read goroutine; the
// callback is responsible for moving them onto the dispatch goroutine.
type MediaClient struct {
	onFrame func(data []byte, extension string)
	dialer  *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	extension string
	wg        sync.WaitGroup

	logger Logger
}

// NewMediaClient creates a media client that hands every binary frame to
// onFrame.
func NewMediaClient(onFrame func(data []byte, extension string), logger Logger) *MediaClient {
	return &MediaClient{
		onFrame:   onFrame,
		dialer:    &websocket.Dialer{HandshakeTimeout: defaultConnectTimeout},
		extension: defaultMediaExtension,
		logger:    logger,
	}
}

// Connect dials url (e.g. "ws://localhost:11623") and starts reading. An
// existing connection is closed first.
func (m *MediaClient) Connect(ctx context.Context, url string) error {
	m.Disconnect()

	conn, _, err := m.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: media %s: %w", ErrConnectionFailed, url, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.extension = defaultMediaExtension
	m.mu.Unlock()

	m.wg.Add(1)
	go m.readLoop(conn)

	if m.logger != nil {
		m.logger.Info("media channel connected", "url", url)
	}
	return nil
}

// readLoop reads until the connection fails or is closed.
func (m *MediaClient) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if m.logger != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Debug("media channel closed", "error", err)
			}
			return
		}

		switch kind {
		case websocket.TextMessage:
			m.mu.Lock()
			m.extension = string(data)
			m.mu.Unlock()
		case websocket.BinaryMessage:
			m.mu.Lock()
			ext := m.extension
			m.mu.Unlock()
			if m.onFrame != nil {
				m.onFrame(data, ext)
			}
		}
	}
}

// Disconnect closes the connection, if any, and waits for the read loop.
func (m *MediaClient) Disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return
	}

	deadline := time.Now().Add(time.Second)
	//nolint:errcheck // Best-effort close handshake
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.Close()
	m.wg.Wait()
}

// IsConnected reports whether a media connection is open.
func (m *MediaClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}
