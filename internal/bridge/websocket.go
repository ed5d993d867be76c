package bridge

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brodvik/cabinheat/internal/heater"
	"github.com/brodvik/cabinheat/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bridge binds to localhost by default; automation hubs on the
	// same host connect without an Origin header worth checking.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and streams every published
// snapshot to the peer as a JSON message. The stream starts with the
// current snapshot so a client never waits a poll interval for state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	snapshots, cancel := s.ctrl.Subscribe()

	client := &wsClient{
		conn: conn,
		send: make(chan heater.Snapshot, 4),
		done: make(chan struct{}),
	}

	// Seed with the current state before any subscription delivery.
	client.send <- s.ctrl.LatestSnapshot()

	go client.forward(snapshots)
	go client.writePump(remoteAddr)
	client.readPump()

	cancel()
	close(client.done)
	logging.LogConnection(remoteAddr, "websocket_closed")
}

// wsClient is one connected snapshot consumer.
type wsClient struct {
	conn *websocket.Conn
	send chan heater.Snapshot
	done chan struct{}
}

// forward moves subscription deliveries into the send buffer. A slow
// peer loses intermediate snapshots rather than backing up the
// coordinator; only the latest state matters.
func (c *wsClient) forward(snapshots <-chan heater.Snapshot) {
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			select {
			case c.send <- snap:
			default:
				select {
				case <-c.send:
				default:
				}
				select {
				case c.send <- snap:
				default:
				}
			}
		case <-c.done:
			return
		}
	}
}

// writePump serializes all writes to the peer: snapshots and pings.
func (c *wsClient) writePump(remoteAddr string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(snap); err != nil {
				logging.Debug("WebSocket write failed",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}

// readPump drains and discards inbound messages. The stream is one-way,
// but reading is required to process pong frames and notice the peer
// going away.
func (c *wsClient) readPump() {
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
