package domain

import "errors"

var (
	// ErrNotFound indicates the conversation or message does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized indicates a missing or rejected credential
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAdminBusy indicates the admin already has another open conversation
	ErrAdminBusy = errors.New("already handling another active conversation")
	// ErrAlreadyAssigned indicates another admin won the assignment race
	ErrAlreadyAssigned = errors.New("conversation already assigned")
	// ErrConversationClosed indicates an action on a closed conversation
	ErrConversationClosed = errors.New("conversation is closed")
	// ErrConversationPending indicates an admin reply before assignment
	ErrConversationPending = errors.New("conversation is pending assignment")
	// ErrConversationNotClosed indicates deletion of a non-closed conversation
	ErrConversationNotClosed = errors.New("conversation is not closed")
	// ErrNotConnected indicates a realtime operation without a connection
	ErrNotConnected = errors.New("not connected")
	// ErrNoConversation indicates a session action without a conversation
	ErrNoConversation = errors.New("no conversation")
)

// Error codes carried on the wire alongside the human-readable message
const (
	CodeAdminBusy       = "admin_busy"
	CodeAlreadyAssigned = "already_assigned"
	CodeClosed          = "conversation_closed"
	CodePending         = "conversation_pending"
	CodeNotClosed       = "conversation_not_closed"
	CodeNotFound        = "not_found"
)
