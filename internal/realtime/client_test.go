package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtuog/CDW-sub002/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer is a minimal pub/sub endpoint: it records subscriptions and
// echoes publishes back as events.
type testServer struct {
	*httptest.Server

	mu     sync.Mutex
	conn   *websocket.Conn
	topics map[string]bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{topics: make(map[string]bool)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") == "Bearer bad-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ts.mu.Lock()
			switch frame.Type {
			case FrameSubscribe:
				ts.topics[frame.Topic] = true
			case FrameUnsubscribe:
				delete(ts.topics, frame.Topic)
			case FramePublish:
				if ts.topics[frame.Topic] {
					conn.WriteJSON(Frame{Type: FrameEvent, Topic: frame.Topic, Payload: frame.Payload})
				}
			}
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) push(t *testing.T, topic string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	ts.mu.Lock()
	conn := ts.conn
	ts.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameEvent, Topic: topic, Payload: raw}))
}

func (ts *testServer) subscribed(topic string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.topics[topic]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnectUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	defer c.Close()

	err := c.Connect(context.Background(), "bad-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, c.Connected())
}

func TestSubscribeAndDispatch(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	defer c.Close()

	var mu sync.Mutex
	var got []string
	sub, err := c.Subscribe("orders.updates", func(topic string, payload []byte) {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "orders.updates", sub.Topic())

	// Subscriptions registered before Connect are replayed on attach
	require.NoError(t, c.Connect(context.Background(), "visitor-1"))
	waitFor(t, func() bool { return ts.subscribed("orders.updates") })

	ts.push(t, "orders.updates", "hello")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.JSONEq(t, `"hello"`, got[0])
	mu.Unlock()
}

func TestSubscribeReplacesHandler(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "visitor-1"))

	var mu sync.Mutex
	first, second := 0, 0
	_, err := c.Subscribe("t", func(string, []byte) { mu.Lock(); first++; mu.Unlock() })
	require.NoError(t, err)
	sub, err := c.Subscribe("t", func(string, []byte) { mu.Lock(); second++; mu.Unlock() })
	require.NoError(t, err)

	waitFor(t, func() bool { return ts.subscribed("t") })
	ts.push(t, "t", 1)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return second == 1
	})
	mu.Lock()
	assert.Zero(t, first)
	mu.Unlock()

	require.NoError(t, c.Unsubscribe(sub))
	waitFor(t, func() bool { return !ts.subscribed("t") })
}

func TestUnsubscribeNilSafe(t *testing.T) {
	c := NewClient(Config{URL: "ws://unused"}, nil)
	defer c.Close()

	assert.NoError(t, c.Unsubscribe(nil))
	assert.NoError(t, c.Unsubscribe(&Subscription{}))
}

func TestPublishRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background(), "visitor-1"))

	var mu sync.Mutex
	var got string
	_, err := c.Subscribe("echo", func(topic string, payload []byte) {
		mu.Lock()
		got = string(payload)
		mu.Unlock()
	})
	require.NoError(t, err)
	waitFor(t, func() bool { return ts.subscribed("echo") })

	require.NoError(t, c.Publish("echo", map[string]string{"k": "v"}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != ""
	})
	mu.Lock()
	assert.JSONEq(t, `{"k":"v"}`, got)
	mu.Unlock()
}

func TestPublishWithoutConnection(t *testing.T) {
	c := NewClient(Config{URL: "ws://unused"}, nil)
	defer c.Close()

	err := c.Publish("t", "x")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	defer c.Close()

	var mu sync.Mutex
	var reported error
	c.OnError = func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	}
	require.NoError(t, c.Connect(context.Background(), "visitor-1"))

	var delivered bool
	_, err := c.Subscribe("t", func(string, []byte) {
		mu.Lock()
		delivered = true
		mu.Unlock()
	})
	require.NoError(t, err)
	waitFor(t, func() bool { return ts.subscribed("t") })

	ts.mu.Lock()
	require.NoError(t, ts.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ts.mu.Unlock()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	})

	// The connection survives: a later event still arrives
	ts.push(t, "t", "still-alive")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered
	})
}

func TestCloseIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(Config{URL: ts.wsURL()}, nil)
	require.NoError(t, c.Connect(context.Background(), "visitor-1"))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.Connected())

	_, err := c.Subscribe("t", func(string, []byte) {})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}
