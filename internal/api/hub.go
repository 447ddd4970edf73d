package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 4 * time.Second
	pongWait   = 3 * pingPeriod
	sendBuffer = 64
)

// Hub fans events out to websocket subscribers by topic. Connections that
// cannot keep up are dropped rather than blocking the publisher.
type Hub struct {
	mu    sync.RWMutex
	conns map[*hubConn]struct{}
	log   *zap.Logger
}

// NewHub creates an empty hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[*hubConn]struct{}),
		log:   log,
	}
}

// Publish sends payload to every connection subscribed to topic
func (h *Hub) Publish(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal event payload", zap.Error(err))
		return
	}
	frame, err := json.Marshal(realtime.Frame{
		Type:    realtime.FrameEvent,
		Topic:   topic,
		Payload: raw,
	})
	if err != nil {
		h.log.Error("marshal event frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*hubConn
	for conn := range h.conns {
		if !conn.subscribed(topic) {
			continue
		}
		select {
		case conn.send <- frame:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.log.Warn("dropping slow realtime consumer")
		h.remove(conn)
	}
}

func (h *Hub) add(conn *hubConn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *hubConn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(conn.send)
	}
	h.mu.Unlock()
}

// hubConn is one websocket subscriber and its topic set
type hubConn struct {
	ws     *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	topics map[string]struct{}
}

func newHubConn(ws *websocket.Conn) *hubConn {
	return &hubConn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
}

func (c *hubConn) subscribed(topic string) bool {
	c.mu.RLock()
	_, ok := c.topics[topic]
	c.mu.RUnlock()
	return ok
}

func (c *hubConn) subscribe(topic string) {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *hubConn) unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// readPump consumes frames from the client until the connection drops
func (h *Hub) readPump(conn *hubConn) {
	defer func() {
		h.remove(conn)
		conn.ws.Close()
	}()

	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.ws.SetPingHandler(func(data string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return conn.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("realtime read", zap.Error(err))
			}
			return
		}

		var frame realtime.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.log.Warn("malformed realtime frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case realtime.FrameSubscribe:
			conn.subscribe(frame.Topic)
		case realtime.FrameUnsubscribe:
			conn.unsubscribe(frame.Topic)
		case realtime.FramePublish:
			var payload any
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				h.log.Warn("malformed publish payload", zap.Error(err))
				continue
			}
			h.Publish(frame.Topic, payload)
		}
	}
}

// writePump drains the send channel and keeps the connection alive with pings
func (h *Hub) writePump(conn *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
