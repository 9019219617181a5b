// File: internal/livechannel/ws.go
package livechannel

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/logging"
)

var ErrClosed = errors.New("livechannel: channel closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSChannel is the gorilla/websocket Channel implementation. It reconnects
// with backoff when the read side fails; events received during an outage
// are replayed by the server on reconnect (at-least-once), so duplicates are
// expected and handled downstream.
type WSChannel struct {
	url    string
	token  string
	retry  *RetryConfig
	logger logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan domain.Event
	out    chan domain.Event
	done   chan struct{}
	closed bool
}

// Dial connects to the live channel endpoint with the session token and
// starts the read and write pumps.
func Dial(ctx context.Context, rawURL, token string, retry *RetryConfig, logger logging.Logger) (*WSChannel, error) {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	c := &WSChannel{
		url:    rawURL,
		token:  token,
		retry:  retry,
		logger: logger,
		events: make(chan domain.Event, 64),
		out:    make(chan domain.Event, 64),
		done:   make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *WSChannel) connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Events yields inbound events until Close.
func (c *WSChannel) Events() <-chan domain.Event {
	return c.events
}

// SendMessage pushes an outbound message event.
func (c *WSChannel) SendMessage(msg domain.Message) error {
	return c.send(domain.NewEvent(domain.EventNewMessage, msg))
}

// SetTyping publishes the user's typing state for a thread.
func (c *WSChannel) SetTyping(threadID string, isTyping bool) error {
	return c.send(domain.NewEvent(domain.EventTypingSignal, domain.TypingSignal{
		ThreadID: threadID,
		IsTyping: isTyping,
	}))
}

func (c *WSChannel) send(ev domain.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- ev:
		return nil
	}
}

func (c *WSChannel) readPump() {
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.logger.Warn("live channel read failed, reconnecting", "error", err)
			if rErr := RetryWithBackoff(context.Background(), c.retry, c.reconnect); rErr != nil {
				c.logger.Error("live channel reconnect exhausted", "error", rErr)
				return
			}
			continue
		}

		if ev.Type == "" {
			// Malformed frame; drop it rather than tear down the stream.
			c.logger.Debug("dropping event without type")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *WSChannel) reconnect(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.connect(ctx)
}

func (c *WSChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			c.mu.Lock()
			conn := c.conn
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteJSON(ev)
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("live channel write failed", "error", err, "type", ev.Type)
			}
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

// Close stops both pumps and closes the connection.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return c.conn.Close()
	}
	return nil
}
