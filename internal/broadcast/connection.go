// Package broadcast runs the WebSocket endpoint that pushes template
// updates to connected browsers: per-connection outbound queues,
// backpressure handling, heartbeats, and the supporting HTTP endpoints
// (spec §4.7).
package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livereload/internal/protocol"
)

// DefaultOutboundQueueSize bounds how many pending frames a slow client
// may accumulate before the server declares backpressure.
const DefaultOutboundQueueSize = 256

// Connection wraps one upgraded WebSocket with its own bounded outbound
// queue, negotiated wire format, and heartbeat bookkeeping. Template
// field in the teacher's registry.go kept per-connection state for tree
// diffing; here the per-connection state is the negotiated protocol and
// queue, since diffing state lives in the shared cache instead.
type Connection struct {
	conn       *websocket.Conn
	outbound   chan []byte
	negotiated protocol.Negotiated
	mu         sync.Mutex // guards writes to conn directly (pong/close frames)

	missedPongs int
	lastPong    time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(conn *websocket.Conn, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultOutboundQueueSize
	}
	return &Connection{
		conn:     conn,
		outbound: make(chan []byte, queueSize),
		closed:   make(chan struct{}),
		lastPong: time.Now(),
	}
}

// Enqueue attempts a non-blocking send. It reports false (backpressure)
// if the outbound queue is full rather than blocking the broadcaster.
func (c *Connection) Enqueue(frame []byte) (ok bool) {
	select {
	case c.outbound <- frame:
		return true
	default:
		return false
	}
}

// ResetQueue drains any pending frames, used when a connection is
// declared backpressured and about to receive a full_reload instead.
func (c *Connection) ResetQueue() {
	for {
		select {
		case <-c.outbound:
		default:
			return
		}
	}
}

// writeLoop drains the outbound queue onto the socket until Close is
// called or a write fails.
func (c *Connection) writeLoop() {
	for {
		select {
		case frame, ok := <-c.outbound:
			if !ok {
				return
			}
			msgType := websocket.BinaryMessage
			if c.negotiated.Serialisation == protocol.SerialisationText && len(frame) > 0 && frame[0] == 0x00 {
				// An uncompressed text-serialised frame goes out as a plain
				// text frame, without the leading "none" codec tag.
				msgType, frame = websocket.TextMessage, frame[1:]
			}
			c.mu.Lock()
			err := c.conn.WriteMessage(msgType, frame)
			c.mu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) sendControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Close closes the underlying socket and stops the write loop. Safe to
// call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
