package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
)

// ─── Hub ───────────────────────────────────────────────────────────

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelPoint: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelPoint, map[string]any{"well": "A1", "point_index": 0})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != ChannelPoint {
			t.Errorf("message = %s/%s, want event/%s", wsMsg.Type, wsMsg.EventType, ChannelPoint)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelAutofocus: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelState, map[string]any{"state": "RUNNING"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

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

	// A second unregister must not close the channel twice.
	hub.Unregister(client)
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelProgress: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelProgress, 1)
	hub.Broadcast(ChannelProgress, 2)

	if got := len(client.send); got != 1 {
		t.Errorf("buffered messages = %d, want 1", got)
	}
}

// ─── Connections ───────────────────────────────────────────────────

// dialWS connects to the test server's WebSocket endpoint.
func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, ts, "")

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	resp := readWS(t, ws)
	if resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("response = %s/%s, want pong/ping-1", resp.Type, resp.ID)
	}
	if env.srv.hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", env.srv.hub.ClientCount())
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, ts, "")

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid message: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError {
		t.Errorf("response type = %s, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "control", ID: "c-1"}); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeError || resp.ID != "c-1" {
		t.Errorf("response = %s/%s, want error/c-1", resp.Type, resp.ID)
	}
}

func TestWebSocket_SubscribeSendsProgressSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, ts, "")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelProgress, ChannelState}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %s/%s, want response/sub-1", resp.Type, resp.ID)
	}
	snap := readWS(t, ws)
	if snap.Type != WSTypeEvent || snap.EventType != ChannelProgress {
		t.Fatalf("snapshot = %s/%s, want event/%s", snap.Type, snap.EventType, ChannelProgress)
	}
	payload, ok := snap.Payload.(map[string]any)
	if !ok || payload["state"] != string(experiment.StateCreated) {
		t.Errorf("snapshot payload = %v, want state CREATED", snap.Payload)
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelProgress}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %s/%s, want response/unsub-1", resp.Type, resp.ID)
	}
}

func TestWebSocket_RunEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeExperiment(t, "ws.json")
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, ts, "?channels="+ChannelState+","+ChannelPoint)

	// A ping round trip guarantees the client is registered.
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ready"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypePong {
		t.Fatalf("response type = %s, want pong", resp.Type)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/load", map[string]string{"file": "ws.json"}), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/start", nil), http.StatusAccepted)

	var points int
	var final string
	for final == "" {
		msg := readWS(t, ws)
		if msg.Type != WSTypeEvent {
			continue
		}
		payload, _ := msg.Payload.(map[string]any)
		switch msg.EventType {
		case ChannelPoint:
			points++
		case ChannelState:
			if payload["finished"] == true {
				final, _ = payload["state"].(string)
			}
		case ChannelProgress:
			t.Error("progress events should not reach a client that did not subscribe")
		}
	}

	if final != string(experiment.StateCompleted) {
		t.Errorf("final state = %q, want COMPLETED", final)
	}
	if points != 2 {
		t.Errorf("point events = %d, want 2", points)
	}
}

func TestWebSocket_AutofocusResult(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ws := dialWS(t, ts, "?channels="+ChannelAutofocus)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ready"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readWS(t, ws)

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/autofocus/start",
		map[string]float64{"z_start": 0, "z_end": 20, "z_step": 10}), http.StatusAccepted)

	msg := readWS(t, ws)
	if msg.EventType != ChannelAutofocus {
		t.Fatalf("event = %q, want %q", msg.EventType, ChannelAutofocus)
	}
	payload, _ := msg.Payload.(map[string]any)
	if z, _ := payload["z"].([]any); len(z) != 3 {
		t.Errorf("z samples = %v, want 3", payload["z"])
	}
}
