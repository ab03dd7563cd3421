package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/perimeter-core/internal/auth"
	"github.com/nerrad567/perimeter-core/internal/broadcast"
)

// Observer protocol message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeError       = "error"

	// wsReplyBufferSize bounds replies queued for the write pump. Replies
	// beyond it are dropped; a client flooding pings loses pongs, not events.
	wsReplyBufferSize = 16

	// Fallbacks for unset websocket config.
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WSInbound is a message from an observer.
type WSInbound struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// WSReply is a protocol reply sent only to the requesting observer.
type WSReply struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// observerConn is one connected observer.
type observerConn struct {
	id      string
	conn    *websocket.Conn
	sink    *broadcast.QueueSink
	replies chan []byte
}

// handleWebSocket verifies the token query parameter, upgrades the
// connection and registers the observer. Topic subscriptions start empty,
// which receives every topic until the client subscribes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, err := s.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, auth.ErrTokenMissing) {
			writeUnauthorized(w, "token query parameter is required")
		} else {
			writeUnauthorized(w, "invalid or expired token")
		}
		return
	}
	if !principal.Can(auth.PermObserve) {
		writeForbidden(w, "missing permission "+string(auth.PermObserve))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	oc := &observerConn{
		id:      "ws:" + uuid.NewString(),
		conn:    conn,
		sink:    broadcast.NewQueueSink(s.queueSize),
		replies: make(chan []byte, wsReplyBufferSize),
	}
	s.observers.Register(oc.id, oc.sink)
	s.logger.Info("observer connected", "observer_id", oc.id, "subject", principal.Subject)

	go s.writePump(oc)
	go s.readPump(oc)
}

// readPump reads protocol messages until the connection fails. It owns
// deregistration, which closes the sink and so ends the write pump.
func (s *Server) readPump(oc *observerConn) {
	defer func() {
		s.observers.Deregister(oc.id)
		oc.conn.Close()
		s.logger.Info("observer disconnected", "observer_id", oc.id)
	}()

	maxSize := s.wsCfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	pingInterval, pongWait := s.wsTimings()

	oc.conn.SetReadLimit(int64(maxSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	oc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	oc.conn.SetPongHandler(func(string) error {
		return oc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, data, err := oc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "observer_id", oc.id, "error", err)
			}
			return
		}
		// Any client message keeps the connection alive, even if the
		// browser ignores protocol-level pings.
		//nolint:errcheck // Best-effort deadline reset
		oc.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleObserverMessage(oc, data)
	}
}

// writePump is the connection's only writer. It drains the broadcast queue
// and protocol replies and pings the client. A closed queue means the
// observer was deregistered or evicted.
func (s *Server) writePump(oc *observerConn) {
	pingInterval, pongWait := s.wsTimings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		oc.conn.Close()
	}()

	write := func(msgType int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		oc.conn.SetWriteDeadline(time.Now().Add(pongWait))
		return oc.conn.WriteMessage(msgType, data)
	}

	for {
		select {
		case payload, ok := <-oc.sink.Messages():
			if !ok {
				//nolint:errcheck // Best-effort close message
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "observer removed"))
				return
			}
			if err := write(websocket.TextMessage, payload); err != nil {
				return
			}
		case reply := <-oc.replies:
			if err := write(websocket.TextMessage, reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			//nolint:errcheck // Best-effort close message
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// handleObserverMessage applies one inbound protocol message.
func (s *Server) handleObserverMessage(oc *observerConn, data []byte) {
	var msg WSInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(oc, WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		s.reply(oc, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		if msg.Topic == "" {
			s.reply(oc, WSTypeError, map[string]string{"message": msg.Type + " requires a topic"})
			return
		}
		if msg.Type == WSTypeSubscribe {
			s.observers.Subscribe(oc.id, msg.Topic)
		} else {
			s.observers.Unsubscribe(oc.id, msg.Topic)
		}
		s.logger.Debug("observer subscription changed", "observer_id", oc.id, "op", msg.Type, "topic", msg.Topic)
	default:
		s.reply(oc, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// reply queues a protocol reply for the write pump.
func (s *Server) reply(oc *observerConn, msgType string, data any) {
	payload, err := json.Marshal(WSReply{
		Type:      msgType,
		Data:      data,
		Timestamp: broadcast.FormatTimestamp(time.Now()),
	})
	if err != nil {
		return
	}
	select {
	case oc.replies <- payload:
	default:
		s.logger.Debug("observer reply dropped", "observer_id", oc.id, "type", msgType)
	}
}

// wsTimings returns the ping interval and pong wait, with defaults.
func (s *Server) wsTimings() (ping, pong time.Duration) {
	ping = time.Duration(s.wsCfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}
