package domain

import "time"

// ConversationStatus is the lifecycle state of a support conversation
type ConversationStatus string

const (
	// StatusPending means the visitor is waiting for an agent
	StatusPending ConversationStatus = "pending"
	// StatusOpen means exactly one admin is assigned and handling it
	StatusOpen ConversationStatus = "open"
	// StatusClosed is terminal; a closed conversation is never reopened
	StatusClosed ConversationStatus = "closed"
)

// Valid reports whether s is a known status
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOpen, StatusClosed:
		return true
	}
	return false
}

// Conversation represents a bounded support interaction between one visitor
// and at most one admin at a time
type Conversation struct {
	ID               string             `json:"id"`
	VisitorID        string             `json:"visitor_id"`
	VisitorName      string             `json:"visitor_name"`
	VisitorEmail     string             `json:"visitor_email"`
	Subject          string             `json:"subject"`
	Status           ConversationStatus `json:"status"`
	AdminID          string             `json:"admin_id,omitempty"`
	AdminName        string             `json:"admin_name,omitempty"`
	AssistantStarted bool               `json:"assistant_started"`
	LastMessage      string             `json:"last_message"`
	LastMessageAt    time.Time          `json:"last_message_at"`
	VisitorUnread    int                `json:"visitor_unread"`
	AdminUnread      int                `json:"admin_unread"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// CanTransition reports whether moving to next is a legal lifecycle step.
// The lifecycle is strictly monotonic: pending -> open -> closed.
func (c *Conversation) CanTransition(next ConversationStatus) bool {
	switch c.Status {
	case StatusPending:
		return next == StatusOpen || next == StatusClosed
	case StatusOpen:
		return next == StatusClosed
	default:
		return false
	}
}

// Active reports whether the conversation still accepts messages
func (c *Conversation) Active() bool {
	return c.Status == StatusPending || c.Status == StatusOpen
}
