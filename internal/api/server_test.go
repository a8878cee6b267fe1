package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-indi/internal/bridges/camera"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-indi/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}
}

// testServer creates a Server backed by a mock camera bridge.
func testServer(t *testing.T) (*Server, *MockCameras) {
	t.Helper()
	return testServerWithDeps(t, Deps{})
}

// testServerWithDeps fills in the required dependencies missing from deps.
func testServerWithDeps(t *testing.T, deps Deps) (*Server, *MockCameras) {
	t.Helper()

	cameras, _ := deps.Cameras.(*MockCameras)
	if cameras == nil {
		cameras = NewMockCameras("CCD Simulator")
		deps.Cameras = cameras
	}
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	if deps.Version == "" {
		deps.Version = "test"
	}
	deps.Config = config.APIConfig{
		Host:     "127.0.0.1",
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}
	deps.WS = testWSConfig()

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return srv, cameras
}

func serve(srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNew_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Cameras: NewMockCameras()}},
		{"no cameras", Deps{Logger: testLogger()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv, cameras := testServer(t)
	cameras.health.Cameras = 1

	w := serve(srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	bridge, ok := resp["bridge"].(map[string]any)
	if !ok {
		t.Fatalf("bridge = %v, want object", resp["bridge"])
	}
	if bridge["bridge"] != "indi" {
		t.Errorf("bridge.bridge = %v, want indi", bridge["bridge"])
	}
	if bridge["cameras"] != float64(1) {
		t.Errorf("bridge.cameras = %v, want 1", bridge["cameras"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)
	w := serve(srv, http.MethodGet, "/api/v1/health", "")

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := serve(srv, http.MethodGet, "/api/v1/health", "")

	requestID := w.Header().Get("X-Request-ID")
	if len(requestID) != 36 {
		t.Errorf("X-Request-ID = %q, want a UUID", requestID)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestIsImagePoll(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/api/v1/devices/ccd-simulator/stream/frame", true},
		{http.MethodGet, "/api/v1/devices/ccd-simulator/chips/guide/views/guide", true},
		{http.MethodGet, "/api/v1/previews/ccd-simulator/2", true},
		{http.MethodGet, "/api/v1/previews/ccd-simulator", false},
		{http.MethodDelete, "/api/v1/previews/ccd-simulator/2", false},
		{http.MethodGet, "/api/v1/devices/ccd-simulator/stream", false},
		{http.MethodGet, "/api/v1/health", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := isImagePoll(req); got != tt.want {
			t.Errorf("isImagePoll(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestStatusWriter_CountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("hello"))   //nolint:errcheck // Recorder never fails
	w.Write([]byte(", world")) //nolint:errcheck // Recorder never fails

	if w.status != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.status, http.StatusAccepted)
	}
	if w.bytes != 12 {
		t.Errorf("bytes = %d, want 12", w.bytes)
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("Hijack() on a recorder should fail")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := serve(srv, http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMetrics(t *testing.T) {
	srv, cameras := testServer(t)
	cameras.health.Connection = &camera.ConnectionInfo{
		Address:    "localhost:7624",
		Connected:  true,
		MessagesRx: 42,
		Devices:    1,
	}
	cameras.states["CCD Simulator"] = camera.StateMessage{
		Device:    "CCD Simulator",
		Streaming: true,
		Captures:  3,
		Failures:  1,
	}

	w := serve(srv, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.INDI == nil || !m.INDI.Connected || m.INDI.MessagesRx != 42 {
		t.Errorf("INDI = %+v, want connected with 42 messages", m.INDI)
	}
	if m.Cameras.Total != 1 || m.Cameras.Streaming != 1 {
		t.Errorf("Cameras = %+v, want 1 total, 1 streaming", m.Cameras)
	}
	if m.Cameras.Captures != 3 || m.Cameras.Failures != 1 {
		t.Errorf("Cameras captures/failures = %d/%d, want 3/1", m.Cameras.Captures, m.Cameras.Failures)
	}
	if m.Version != "test" {
		t.Errorf("Version = %q, want test", m.Version)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"camera.exposure": {}},
	}
	hub.Register(client)

	hub.Broadcast("camera.exposure", map[string]any{"device": "CCD Simulator", "value": 4.5})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != "camera.exposure" {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, "camera.exposure")
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"camera.state": {}},
	}
	hub.Register(client)

	hub.Broadcast("camera.exposure", map[string]any{"device": "CCD Simulator"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSClient_IsSubscribed(t *testing.T) {
	client := &WSClient{subscriptions: map[string]struct{}{
		"camera.state": {},
		"camera.file*": {},
	}}

	tests := []struct {
		channel string
		want    bool
	}{
		{"camera.state", true},
		{"camera.file_saved", true},
		{"camera.file_written", true},
		{"camera.exposure", false},
		{"camera.stat", false},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			if got := client.isSubscribed(tt.channel); got != tt.want {
				t.Errorf("isSubscribed(%q) = %v, want %v", tt.channel, got, tt.want)
			}
		})
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestSubscribeStateUpdates_RelaysToHub(t *testing.T) {
	source := NewMockStateSource()
	srv, _ := testServerWithDeps(t, Deps{MQTT: source})

	if err := srv.subscribeStateUpdates(); err != nil {
		t.Fatalf("subscribeStateUpdates() error: %v", err)
	}

	client := &WSClient{
		hub:           srv.hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelState: {}},
	}
	srv.hub.Register(client)

	payload := []byte(`{"device":"CCD Simulator","streaming":true,"captures":2}`)
	if err := source.deliver("graylogic/state/indi/+", "graylogic/state/indi/ccd-simulator", payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelState {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelState)
		}
		state, _ := wsMsg.Payload.(map[string]any)
		if state["device"] != "CCD Simulator" {
			t.Errorf("payload device = %v, want CCD Simulator", state["device"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed state")
	}

	// Malformed payloads are dropped without an error.
	if err := source.deliver("graylogic/state/indi/+", "graylogic/state/indi/ccd-simulator", []byte("{")); err != nil {
		t.Errorf("handler error for bad payload = %v, want nil", err)
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func testServerWithRealListener(t *testing.T, port int) (*Server, string) {
	t.Helper()

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     port,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig(),
		Logger:  testLogger(),
		Cameras: NewMockCameras("CCD Simulator"),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { srv.Close() })

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	return srv, fmt.Sprintf("127.0.0.1:%d", port)
}

func TestServer_StartAndClose(t *testing.T) {
	port := 19080
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     port,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig(),
		Logger:  testLogger(),
		Cameras: NewMockCameras(),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	cancel()
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheck_NotStarted(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil before Start, want error")
	}
}

func TestServer_ExternalHub(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	srv, err := New(Deps{Logger: testLogger(), Cameras: NewMockCameras(), ExternalHub: hub})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if srv.hub != hub || !srv.externalHub {
		t.Error("external hub was not adopted")
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19082)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"camera.state", "camera.exposure"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse {
		t.Errorf("subscribe response type = %s, want response", resp.Type)
	}
	if resp.ID != "sub-1" {
		t.Errorf("response ID = %s, want sub-1", resp.ID)
	}
	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{"camera.exposure"}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read unsubscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse {
		t.Errorf("unsubscribe response type = %s, want response", resp.Type)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19083)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong {
		t.Errorf("response type = %s, want pong", resp.Type)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response ID = %s, want ping-1", resp.ID)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19084)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("response type = %s, want error", resp.Type)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19085)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: "unknown_type", ID: "test-1"}); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("response type = %s, want error", resp.Type)
	}
}

func TestWebSocket_Broadcast(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19086)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"camera.*"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}

	srv.hub.Broadcast("camera.file_saved", map[string]string{"path": "/data/M42_Light_001.fits"})

	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if resp.Type != WSTypeEvent {
		t.Errorf("broadcast type = %s, want event", resp.Type)
	}
	if resp.EventType != "camera.file_saved" {
		t.Errorf("broadcast event_type = %s, want camera.file_saved", resp.EventType)
	}
}

func TestWebSocket_RejectsForeignChannel(t *testing.T) {
	_, addr := testServerWithRealListener(t, 19087)

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"camera.state", "knx.telegram"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "sub-1" {
		t.Errorf("response = %s %s, want error sub-1", resp.Type, resp.ID)
	}
}

func TestWebSocket_ReplaysCameraStates(t *testing.T) {
	srv, addr := testServerWithRealListener(t, 19088)

	srv.hub.BroadcastState("Guide Camera", map[string]any{"device": "Guide Camera"})
	srv.hub.BroadcastState("CCD Simulator", map[string]any{"device": "CCD Simulator", "captures": 1})
	srv.hub.BroadcastState("CCD Simulator", map[string]any{"device": "CCD Simulator", "captures": 2})

	ws := connectWebSocket(t, addr)
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"camera.*"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse {
		t.Fatalf("response type = %s, want response", resp.Type)
	}

	want := []struct {
		device   string
		captures any
	}{
		{"CCD Simulator", float64(2)},
		{"Guide Camera", nil},
	}
	for _, w := range want {
		var frame WSMessage
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read state frame: %v", err)
		}
		if frame.EventType != ChannelState {
			t.Errorf("event_type = %q, want %q", frame.EventType, ChannelState)
		}
		state, _ := frame.Payload.(map[string]any)
		if state["device"] != w.device || state["captures"] != w.captures {
			t.Errorf("state = %v, want device %q captures %v", state, w.device, w.captures)
		}
	}
}

func connectWebSocket(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws
}
