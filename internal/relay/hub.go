// File: internal/relay/hub.go
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
	hubSendBuffer = 64
)

// Hub tracks connected clients keyed by user id. A user may hold several
// connections at once (multiple tabs); fan-out reaches all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool
	logger  logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Hub{
		clients: make(map[string]map[*client]bool),
		logger:  logger,
	}
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*client]bool)
	}
	h.clients[c.userID][c] = true
	h.mu.Unlock()
	h.logger.Info("client connected", "user_id", c.userID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Info("client disconnected", "user_id", c.userID)
}

// SendToUsers marshals the event once and delivers it to every connection of
// every listed user. Connections with a full send buffer are dropped rather
// than allowed to stall the rest.
func (h *Hub) SendToUsers(userIDs []string, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event marshal failed", "type", string(ev.Type), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range userIDs {
		for c := range h.clients[userID] {
			select {
			case c.send <- data:
			default:
				delete(h.clients[userID], c)
				close(c.send)
			}
		}
		if len(h.clients[userID]) == 0 {
			delete(h.clients, userID)
		}
	}
}

// Serve runs the read and write pumps for an upgraded connection and blocks
// until the connection drops. Inbound new_message and typing_signal events are
// routed to the service; everything else a client sends is ignored.
func (h *Hub) Serve(conn *websocket.Conn, userID string, svc *Service) {
	c := &client{hub: h, conn: conn, userID: userID, send: make(chan []byte, hubSendBuffer)}
	h.register(c)

	go c.writePump()
	c.readPump(svc)
}

func (c *client) readPump(svc *Service) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		return nil
	})

	for {
		var ev domain.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("read failed", "user_id", c.userID, "error", err)
			}
			return
		}

		ctx := context.Background()
		switch ev.Type {
		case domain.EventNewMessage:
			var msg domain.Message
			if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.ThreadID == "" {
				c.hub.logger.Warn("dropping malformed inbound message", "user_id", c.userID, "error", err)
				continue
			}
			if _, err := svc.SendMessage(ctx, c.userID, msg.ThreadID, msg.Body, msg.CreatedAt); err != nil {
				c.hub.logger.Warn("inbound message rejected", "user_id", c.userID, "thread_id", msg.ThreadID, "error", err)
			}

		case domain.EventTypingSignal:
			var sig domain.TypingSignal
			if err := json.Unmarshal(ev.Payload, &sig); err != nil || sig.ThreadID == "" {
				c.hub.logger.Warn("dropping malformed typing signal", "user_id", c.userID, "error", err)
				continue
			}
			svc.RelayTyping(ctx, c.userID, sig)

		default:
			c.hub.logger.Debug("ignoring inbound event", "type", string(ev.Type), "user_id", c.userID)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
