package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

const (
	defaultHeartbeat = 4 * time.Second
	defaultReconnect = 5 * time.Second
	writeWait        = 10 * time.Second
)

// Handler is invoked once per inbound event on a subscribed topic. Handlers
// run on the connection's read goroutine and should return quickly.
type Handler func(topic string, payload []byte)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	topic string
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() string {
	if s == nil {
		return ""
	}
	return s.topic
}

// Config holds transport settings
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:port/ws
	URL string
	// HeartbeatInterval is the ping cadence in each direction (default 4s)
	HeartbeatInterval time.Duration
	// ReconnectDelay is the fixed retry delay after a dropped connection
	// (default 5s)
	ReconnectDelay time.Duration
}

// Client maintains one persistent pub/sub connection. Connect replaces any
// prior connection; subscriptions survive reconnects and are replayed after
// each successful dial.
type Client struct {
	cfg Config
	log *zap.Logger

	// OnError receives mid-session protocol errors. The connection and its
	// subscriptions stay alive; the caller decides whether to reconnect.
	OnError func(error)

	mu       sync.Mutex
	wmu      sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	token    string
	gen      int
	closed   bool
	done     chan struct{}
}

// NewClient creates a realtime client. It does not dial until Connect.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnect
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		log:      logger,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Connect establishes the connection authenticated with token. Calling it
// while already connected tears down the previous connection first so no
// orphaned socket keeps its subscriptions. An authentication rejection is
// terminal: no retry loop is started.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", domain.ErrNotConnected)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.token = token
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(ctx, token)
	if err != nil {
		return err
	}
	c.attach(conn, gen)
	return nil
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("connect %s: %w", c.cfg.URL, domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// attach installs conn as the current connection for generation gen, replays
// subscriptions and starts the pumps
func (c *Client) attach(conn *websocket.Conn, gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		if err := c.writeFrame(conn, Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
			c.log.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	go c.readPump(conn, gen)
	go c.pingPump(conn, gen)
}

// Subscribe registers handler for topic. A topic has at most one handler per
// connection: re-subscribing replaces the previous one. Registering before
// Connect is allowed; the subscription is sent once connected.
func (c *Client) Subscribe(topic string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, domain.ErrNotConnected)
	}
	_, replaced := c.handlers[topic]
	c.handlers[topic] = handler
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && !replaced {
		if err := c.writeFrame(conn, Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return &Subscription{topic: topic}, nil
}

// Unsubscribe releases sub. Safe to call on a nil or already-released handle.
func (c *Client) Unsubscribe(sub *Subscription) error {
	topic := sub.Topic()
	if topic == "" {
		return nil
	}
	c.mu.Lock()
	_, ok := c.handlers[topic]
	delete(c.handlers, topic)
	conn := c.conn
	c.mu.Unlock()

	if !ok || conn == nil {
		return nil
	}
	return c.writeFrame(conn, Frame{Type: FrameUnsubscribe, Topic: topic})
}

// Publish pushes payload to topic over the current connection
func (c *Client) Publish(topic string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("publish %s: %w", topic, domain.ErrNotConnected)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return c.writeFrame(conn, Frame{Type: FramePublish, Topic: topic, Payload: raw})
}

// Close tears down the connection and all subscriptions. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.handlers = make(map[string]Handler)
	return nil
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

func (c *Client) writeFrame(conn *websocket.Conn, f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func (c *Client) readPump(conn *websocket.Conn, gen int) {
	pongWait := 3 * c.cfg.HeartbeatInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frame: report and keep the connection alive
			c.reportError(fmt.Errorf("malformed frame: %w", err))
			continue
		}

		switch frame.Type {
		case FrameEvent:
			c.dispatch(frame.Topic, frame.Payload)
		default:
			c.reportError(fmt.Errorf("unexpected frame type %q", frame.Type))
		}
	}
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()
	if handler == nil {
		c.log.Debug("event without subscriber", zap.String("topic", topic))
		return
	}
	handler(topic, payload)
}

func (c *Client) pingPump(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.stale(conn, gen) {
				return
			}
			c.wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) stale(conn *websocket.Conn, gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || gen != c.gen || c.conn != conn
}

// handleDisconnect runs the fixed-delay retry loop until Close or a newer
// connection supersedes this one
func (c *Client) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	conn.Close()
	if c.stale(conn, gen) {
		return
	}
	c.mu.Lock()
	c.conn = nil
	token := c.token
	c.mu.Unlock()
	c.log.Warn("realtime connection lost, retrying", zap.Error(cause),
		zap.Duration("delay", c.cfg.ReconnectDelay))

	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		c.mu.Lock()
		superseded := c.closed || gen != c.gen
		c.mu.Unlock()
		if superseded {
			return
		}

		next, err := c.dial(context.Background(), token)
		if err == nil {
			c.log.Info("realtime connection restored")
			c.attach(next, gen)
			return
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			// Credential no longer accepted: stop retrying and surface it
			c.reportError(err)
			return
		}
		c.log.Warn("reconnect failed", zap.Error(err))
	}
}

func (c *Client) reportError(err error) {
	if c.OnError != nil {
		c.OnError(err)
		return
	}
	c.log.Warn("realtime protocol error", zap.Error(err))
}
