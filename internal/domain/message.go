package domain

import "time"

// SenderRole identifies who produced a message
type SenderRole string

const (
	RoleVisitor SenderRole = "visitor"
	RoleAdmin   SenderRole = "admin"
	RoleSystem  SenderRole = "system"
	RoleBot     SenderRole = "bot"
)

// Message is a single entry in a conversation transcript. The server-issued
// ID is the deduplication key: once the backend assigns it, it never changes.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Content        string     `json:"content"`
	SenderRole     SenderRole `json:"sender_role"`
	SenderName     string     `json:"sender_name"`
	Read           bool       `json:"read"`
	CreatedAt      time.Time  `json:"created_at"`

	// Provisional marks a client-synthesized optimistic entry that has not
	// been confirmed by the backend. Never serialized.
	Provisional bool `json:"-"`
}

// MessagePage is one page of conversation history, newest first as returned
// by the backend
type MessagePage struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
