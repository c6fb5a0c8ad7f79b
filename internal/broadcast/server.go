package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livereload/internal/htmlmin"
	"github.com/livefir/livereload/internal/protocol"
)

// Config controls timing and sizing for the broadcast server.
type Config struct {
	HeartbeatInterval time.Duration // Default: 30s
	MissedHeartbeats  int           // Default: 3, close after this many unanswered pings
	OutboundQueueSize int           // Default: DefaultOutboundQueueSize
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		MissedHeartbeats:  3,
		OutboundQueueSize: DefaultOutboundQueueSize,
	}
}

// StatsProvider is implemented by whatever collects dev-session
// statistics (internal/devstats), kept as an interface here so this
// package never imports the stats package directly.
type StatsProvider interface {
	Snapshot() any
	IncrementConnectionOpened()
	IncrementConnectionClosed()
}

// Server upgrades /ws connections, fans out broadcast messages to every
// connected client in its own negotiated wire format, and serves the
// supporting HTTP surface (/health, /stats, /client.js).
type Server struct {
	cfg      Config
	registry *Registry
	upgrader websocket.Upgrader
	seq      atomic.Uint64
	clientJS []byte
	stats    StatsProvider
	start    time.Time

	// OnMessage, if set, is invoked for every inbound frame the read loop
	// decodes that isn't handled internally (pong) -- reload_request and
	// state_response in particular. It runs on the connection's read
	// goroutine; callers needing to do real work should hand off quickly.
	OnMessage func(*protocol.Message)
}

// New creates a Server. clientJS is the embedded client asset served at
// GET /client.js; stats may be nil if no stats provider is wired yet.
func New(cfg Config, clientJS []byte, stats StatsProvider) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.MissedHeartbeats <= 0 {
		cfg.MissedHeartbeats = DefaultConfig().MissedHeartbeats
	}
	return &Server{
		cfg:      cfg,
		registry: newRegistry(),
		clientJS: clientJS,
		stats:    stats,
		start:    time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev-only server
		},
	}
}

// Mux builds the HTTP handler exposing /ws, /health, /stats, /client.js.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/client.js", s.handleClientJS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[broadcast] upgrade failed: %v", err)
		return
	}
	conn := newConnection(raw, s.cfg.OutboundQueueSize)
	negotiated := s.negotiate(conn)
	conn.negotiated = negotiated

	s.registry.add(conn)
	if s.stats != nil {
		s.stats.IncrementConnectionOpened()
	}
	log.Printf("[broadcast] client connected (total: %d)", s.registry.Count())

	go conn.writeLoop()
	go s.heartbeatLoop(conn)
	s.readLoop(conn)

	s.registry.remove(conn)
	conn.Close()
	if s.stats != nil {
		s.stats.IncrementConnectionClosed()
	}
	log.Printf("[broadcast] client disconnected (total: %d)", s.registry.Count())
}

// negotiate reads the client's hello (client_capabilities) message and
// replies with protocol_negotiated. A hello without capabilities (or one
// that is unparseable) is answered with the universal-fallback
// negotiation, matching Negotiate's graceful-degradation contract; if
// the read itself fails, the fallback is used and no reply is sent.
func (s *Server) negotiate(conn *Connection) protocol.Negotiated {
	_, data, err := conn.conn.ReadMessage()
	fallback := protocol.Negotiate(protocol.Capabilities{})
	if err != nil {
		return fallback
	}
	negotiated := fallback
	var hello protocol.Message
	if err := json.Unmarshal(data, &hello); err == nil && hello.ClientCapabilities != nil {
		negotiated = protocol.Negotiate(*hello.ClientCapabilities)
	}

	reply := &protocol.Message{
		Type: protocol.TypeProtocolNegotiated,
		ProtocolNegotiated: &protocol.ProtocolNegotiatedPayload{
			Serialisation: negotiated.Serialisation,
			Compression:   negotiated.Compression,
			Features:      negotiated.Features,
		},
	}
	if encoded, err := json.Marshal(reply); err == nil {
		_ = conn.sendControl(websocket.TextMessage, encoded)
	}
	return negotiated
}

// readLoop drains incoming frames (pongs, client_capabilities re-sends,
// reload_request, state_response) until the connection errors out.
func (s *Server) readLoop(conn *Connection) {
	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeMessage(data, conn.negotiated.Serialisation)
		if err != nil {
			continue
		}
		switch msg.Type {
		case protocol.TypePong:
			conn.missedPongs = 0
			conn.lastPong = time.Now()
		default:
			if s.OnMessage != nil {
				s.OnMessage(msg)
			}
		}
	}
}

func (s *Server) heartbeatLoop(conn *Connection) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.closed:
			return
		case <-ticker.C:
			if conn.missedPongs >= s.cfg.MissedHeartbeats {
				log.Printf("[broadcast] closing connection after %d missed heartbeats", conn.missedPongs)
				conn.Close()
				return
			}
			ping := &protocol.Message{Type: protocol.TypePing}
			frame, err := s.encodeFor(conn, ping)
			if err != nil {
				continue
			}
			conn.missedPongs++
			if !conn.Enqueue(frame) {
				s.degradeToFullReload(conn, "backpressure")
			}
		}
	}
}

// Broadcast fans msg out to every connected client in that client's own
// negotiated encoding, assigning the shared monotonic sequence number
// once so all clients observe the same ordering.
func (s *Server) Broadcast(msg *protocol.Message) {
	msg.Seq = s.seq.Add(1)
	minifyPayload(msg)
	for _, conn := range s.registry.All() {
		frame, err := s.encodeFor(conn, msg)
		if err != nil {
			log.Printf("[broadcast] encode failed for client: %v", err)
			continue
		}
		if !conn.Enqueue(frame) {
			s.degradeToFullReload(conn, "backpressure")
		}
	}
}

// minifyPayload shrinks every full-HTML field a message carries before it
// is encoded for any connection -- once per broadcast, not once per
// connection, since the HTML itself doesn't vary by serialisation.
func minifyPayload(msg *protocol.Message) {
	if msg.TemplateUpdated != nil {
		msg.TemplateUpdated.HTML = htmlmin.HTML(msg.TemplateUpdated.HTML)
	}
	if msg.BatchUpdate != nil {
		for i := range msg.BatchUpdate.Items {
			if u := msg.BatchUpdate.Items[i].Update; u != nil {
				u.HTML = htmlmin.HTML(u.HTML)
			}
		}
	}
}

func (s *Server) encodeFor(conn *Connection, msg *protocol.Message) ([]byte, error) {
	encoded, err := protocol.EncodeMessage(msg, conn.negotiated.Serialisation)
	if err != nil {
		return nil, err
	}
	scheme := conn.negotiated.Compression
	if !protocol.ShouldCompress(len(encoded)) {
		scheme = protocol.CompressionNone
	}
	compressed, err := protocol.Compress(encoded, scheme)
	if err != nil {
		return nil, err
	}
	guarded, err := protocol.GuardFrame(compressed)
	if err != nil {
		return s.fullReloadFrame(conn)
	}
	return guarded, nil
}

func (s *Server) fullReloadFrame(conn *Connection) ([]byte, error) {
	fr := protocol.FullReloadForOversize()
	fr.Seq = s.seq.Load()
	encoded, err := protocol.EncodeMessage(fr, conn.negotiated.Serialisation)
	if err != nil {
		return nil, err
	}
	return protocol.Compress(encoded, protocol.CompressionNone)
}

// degradeToFullReload drops the connection's pending queue and sends a
// single full_reload instead -- the backpressure response required by
// spec §4.7 rather than accumulating an unbounded backlog.
func (s *Server) degradeToFullReload(conn *Connection, reason string) {
	conn.ResetQueue()
	msg := &protocol.Message{Type: protocol.TypeFullReload, FullReload: &protocol.FullReloadPayload{Reason: reason}}
	frame, err := s.encodeFor(conn, msg)
	if err != nil {
		return
	}
	conn.Enqueue(frame)
}

// handleHealth serves the fixed health contract (spec §6): a 200 with a
// JSON body reporting liveness and process uptime, not a bare text body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		UptimeS int64  `json:"uptime_s"`
	}{
		Status:  "alive",
		UptimeS: int64(time.Since(s.start).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	snapshot := map[string]any{
		"connected_clients": s.registry.Count(),
		"sequence":          s.seq.Load(),
	}
	if s.stats != nil {
		snapshot["session"] = s.stats.Snapshot()
	}
	_ = json.NewEncoder(w).Encode(snapshot)
}

func (s *Server) handleClientJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(s.clientJS)
}

// Shutdown closes every active connection. Intended to be called from
// the owning Engine's shutdown path alongside an http.Server.Shutdown.
func (s *Server) Shutdown(ctx context.Context) {
	for _, conn := range s.registry.All() {
		conn.Close()
	}
}
