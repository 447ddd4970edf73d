package realtime

import "encoding/json"

// FrameType discriminates the JSON frames exchanged on the realtime channel
type FrameType string

const (
	// FrameSubscribe registers interest in a topic
	FrameSubscribe FrameType = "subscribe"
	// FrameUnsubscribe withdraws interest in a topic
	FrameUnsubscribe FrameType = "unsubscribe"
	// FramePublish pushes a payload to a topic
	FramePublish FrameType = "publish"
	// FrameEvent delivers a topic payload to a subscriber
	FrameEvent FrameType = "event"
)

// Frame is the wire envelope for the realtime channel. Heartbeats use
// websocket control frames, not Frame.
type Frame struct {
	Type    FrameType       `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
