package broadcast

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livereload/internal/protocol"
)

type fakeStats struct {
	opened, closed int
}

func (f *fakeStats) Snapshot() any                { return map[string]int{"opened": f.opened} }
func (f *fakeStats) IncrementConnectionOpened()    { f.opened++ }
func (f *fakeStats) IncrementConnectionClosed()    { f.closed++ }

func dialServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestServerNegotiatesAndBroadcasts(t *testing.T) {
	stats := &fakeStats{}
	s := New(DefaultConfig(), []byte("console.log('client')"), stats)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	conn := dialServer(t, srv)
	defer conn.Close()

	hello := protocol.Message{
		Type: protocol.TypeClientCapabilities,
		ClientCapabilities: &protocol.Capabilities{
			Serialisation: []string{protocol.SerialisationText},
			Compression:   []string{protocol.CompressionNone},
		},
	}
	encoded, _ := json.Marshal(hello)
	if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read negotiated: %v", err)
	}
	var negotiated protocol.Message
	if err := json.Unmarshal(data, &negotiated); err != nil {
		t.Fatalf("unmarshal negotiated: %v", err)
	}
	if negotiated.Type != protocol.TypeProtocolNegotiated {
		t.Fatalf("expected protocol_negotiated, got %s", negotiated.Type)
	}

	s.Broadcast(&protocol.Message{
		Type:       protocol.TypeFullReload,
		FullReload: &protocol.FullReloadPayload{Reason: "test"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var received protocol.Message
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if received.Type != protocol.TypeFullReload || received.FullReload.Reason != "test" {
		t.Fatalf("unexpected broadcast payload: %+v", received)
	}

	if stats.opened != 1 {
		t.Fatalf("expected 1 connection opened, got %d", stats.opened)
	}
}

func TestServerInvokesOnMessageForReloadRequest(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	received := make(chan *protocol.Message, 1)
	s.OnMessage = func(m *protocol.Message) { received <- m }

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	conn := dialServer(t, srv)
	defer conn.Close()

	// Skip the negotiation handshake the server always waits for first.
	encoded, _ := json.Marshal(protocol.Message{Type: protocol.TypeClientCapabilities})
	conn.WriteMessage(websocket.TextMessage, encoded)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage() // protocol_negotiated

	req := protocol.Message{
		Type:          protocol.TypeReloadRequest,
		ReloadRequest: &protocol.ReloadRequestPayload{Identity: protocol.IdentityWire{SourcePath: "a.go", Line: 1, Column: 2}},
	}
	encoded, _ = json.Marshal(req)
	if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
		t.Fatalf("write reload_request: %v", err)
	}

	select {
	case msg := <-received:
		if msg.ReloadRequest == nil || msg.ReloadRequest.Identity.SourcePath != "a.go" {
			t.Fatalf("unexpected message delivered to OnMessage: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnMessage callback")
	}
}

func TestHandleHealthReturnsStatusAndUptime(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	time.Sleep(10 * time.Millisecond)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		UptimeS int64  `json:"uptime_s"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health body: %v", err)
	}
	if body.Status != "alive" {
		t.Fatalf("expected status %q, got %q", "alive", body.Status)
	}
	if body.UptimeS < 0 {
		t.Fatalf("expected a non-negative uptime_s, got %d", body.UptimeS)
	}
}

func TestHandleClientJSServesEmbeddedAsset(t *testing.T) {
	s := New(DefaultConfig(), []byte("window.__hotreload = {};"), nil)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/client.js")
	if err != nil {
		t.Fatalf("GET /client.js: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "__hotreload") {
		t.Fatalf("expected client.js body, got %q", buf[:n])
	}
}
