package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scanhub/scanhub/internal/broadcast"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum control message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage is what clients send: join/leave for a scan session.
type controlMessage struct {
	Type   string `json:"type"`
	ScanID string `json:"scan_id"`
}

// wireEvent is the event shape sent to clients.
type wireEvent struct {
	Type    string   `json:"type"`
	ScanID  string   `json:"scan_id"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

func toWire(event broadcast.Event) wireEvent {
	out := wireEvent{
		Type:   string(event.Type),
		ScanID: event.SessionID,
	}
	switch event.Type {
	case broadcast.EventProgress:
		percent := event.Percent
		out.Percent = &percent
	case broadcast.EventError:
		out.Error = event.Message
	default:
		out.Message = event.Message
	}
	return out
}

// handleWebSocket upgrades the connection and bridges it to the broadcast
// hub. Clients join and leave sessions over the same connection; the
// server pushes every event for joined sessions in publish order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s.metrics.ClientConnected()
	sub := s.hub.NewSubscriber()
	s.logger.Debug("websocket client connected", "remote_addr", r.RemoteAddr)

	go s.writePump(conn, sub)
	s.readPump(conn, sub)
}

// readPump consumes join/leave messages until the connection drops, then
// tears the subscriber down. Removing the subscriber closes its event
// channel, which ends the write pump.
func (s *Server) readPump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer func() {
		s.hub.Remove(sub)
		_ = conn.Close()
		s.metrics.ClientDisconnected()
		s.logger.Debug("websocket client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case "join":
			s.hub.Join(sub, msg.ScanID)
		case "leave":
			s.hub.Leave(sub, msg.ScanID)
		default:
			s.logger.Debug("ignoring unknown websocket message", "type", msg.Type)
		}
	}
}

// writePump forwards hub events to the peer and keeps the connection alive
// with pings.
func (s *Server) writePump(conn *websocket.Conn, sub *broadcast.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(toWire(event)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
