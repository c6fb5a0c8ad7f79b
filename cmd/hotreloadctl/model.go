package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/livefir/livereload/internal/protocol"
)

const statsPollInterval = 2 * time.Second

// statsMsg carries a decoded /stats snapshot.
type statsMsg struct {
	ConnectedClients int            `json:"connected_clients"`
	Sequence         uint64         `json:"sequence"`
	Session          map[string]any `json:"session"`
}

type statsErrMsg struct{ err error }

// wsFrameMsg carries one decoded broadcast frame read off the dev server's
// websocket endpoint.
type wsFrameMsg struct{ msg protocol.Message }

type wsClosedMsg struct{ err error }
type wsConnectedMsg struct{ conn *websocket.Conn }

// Model is the bubbletea model driving the dev console. It never mutates
// the running reload session -- it only observes /stats and /ws, the same
// two read surfaces a connected browser tab uses.
type Model struct {
	addr   string
	styles Styles

	width  int
	height int

	conn      *websocket.Conn
	connected bool
	connErr   error

	stats statsMsg

	log      viewport.Model
	lines    []string
	lastKind string
}

func newModel(addr string) Model {
	vp := viewport.New(80, 14)
	return Model{
		addr:   addr,
		styles: newStyles(),
		log:    vp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		pollStats(m.addr),
		connectWS(m.addr),
	)
}

func pollStats(addr string) tea.Cmd {
	return tea.Tick(statsPollInterval, func(time.Time) tea.Msg {
		resp, err := http.Get("http://" + addr + "/stats")
		if err != nil {
			return statsErrMsg{err}
		}
		defer resp.Body.Close()
		var s statsMsg
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return statsErrMsg{err}
		}
		return s
	})
}

func connectWS(addr string) tea.Cmd {
	return func() tea.Msg {
		url := "ws://" + addr + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return wsClosedMsg{err}
		}
		hello := protocol.Message{
			Type: protocol.TypeClientCapabilities,
			ClientCapabilities: &protocol.Capabilities{
				Serialisation: []string{protocol.SerialisationText},
				Compression:   []string{protocol.CompressionNone},
			},
		}
		encoded, _ := json.Marshal(hello)
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			conn.Close()
			return wsClosedMsg{err}
		}
		return wsConnectedMsg{conn}
	}
}

// readFrame blocks on the next websocket frame, mirroring waitForStatus's
// channel-read command shape: one read per tea.Cmd invocation, re-armed
// from Update after each message.
func readFrame(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return wsClosedMsg{err}
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return wsClosedMsg{err}
		}
		return wsFrameMsg{msg}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = msg.Width - 4
		m.log.Height = msg.Height - 8
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.conn != nil {
				m.conn.Close()
			}
			return m, tea.Quit
		}

	case statsMsg:
		m.stats = msg
		return m, pollStats(m.addr)

	case statsErrMsg:
		m.connErr = msg.err
		return m, pollStats(m.addr)

	case wsConnectedMsg:
		m.conn = msg.conn
		m.connected = true
		m.connErr = nil
		return m, readFrame(m.conn)

	case wsClosedMsg:
		m.connected = false
		m.connErr = msg.err
		m.conn = nil
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, connectWS(m.addr)

	case wsFrameMsg:
		m.appendFrame(msg.msg)
		return m, readFrame(m.conn)
	}
	return m, nil
}

type reconnectMsg struct{}

func (m *Model) appendFrame(msg protocol.Message) {
	m.lastKind = string(msg.Type)
	line := describeFrame(msg)
	m.lines = append(m.lines, line)
	if len(m.lines) > 500 {
		m.lines = m.lines[len(m.lines)-500:]
	}
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

func describeFrame(msg protocol.Message) string {
	ts := time.Now().Format("15:04:05")
	switch msg.Type {
	case protocol.TypeTemplateUpdated:
		id := msg.TemplateUpdated.Identity
		return fmt.Sprintf("%s  update    %s:%d:%d", ts, id.SourcePath, id.Line, id.Column)
	case protocol.TypeTemplateDeltaUpdate:
		id := msg.TemplateDeltaUpdate.Identity
		return fmt.Sprintf("%s  delta     %s:%d:%d  %d ops", ts, id.SourcePath, id.Line, id.Column, len(msg.TemplateDeltaUpdate.Operations))
	case protocol.TypeBatchUpdate:
		return fmt.Sprintf("%s  batch     %d items", ts, len(msg.BatchUpdate.Items))
	case protocol.TypeAssetUpdated:
		return fmt.Sprintf("%s  asset     %s (%s)", ts, msg.AssetUpdated.Path, msg.AssetUpdated.Kind)
	case protocol.TypeFullReload:
		return fmt.Sprintf("%s  full      %s", ts, msg.FullReload.Reason)
	case protocol.TypeProtocolNegotiated:
		return fmt.Sprintf("%s  negotiated %s/%s", ts, msg.ProtocolNegotiated.Serialisation, msg.ProtocolNegotiated.Compression)
	default:
		return fmt.Sprintf("%s  %s", ts, msg.Type)
	}
}
