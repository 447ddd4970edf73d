package domain

// CreateConversationRequest is the visitor's request to open a conversation
type CreateConversationRequest struct {
	VisitorName  string `json:"visitor_name" binding:"required"`
	VisitorEmail string `json:"visitor_email"`
	Subject      string `json:"subject"`
}

// SendMessageRequest is the request to append a message
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// AssignRequest is the admin's request to claim a pending conversation
type AssignRequest struct {
	AdminID   string `json:"admin_id"`
	AdminName string `json:"admin_name"`
}

// SelectionRequest is the visitor's decision-tree option submission
type SelectionRequest struct {
	OptionKey string `json:"option_key" binding:"required"`
	Label     string `json:"label"`
}

// SelectionResult carries the two messages persisted for a decision-tree
// selection: the visitor's choice and the assistant's reply
type SelectionResult struct {
	Selection Message `json:"selection"`
	Reply     Message `json:"reply"`
}

// ConversationList is the admin listing response with aggregate counts
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// AdminStats are aggregate counters for the console dashboard
type AdminStats struct {
	Pending       int `json:"pending"`
	Open          int `json:"open"`
	Closed        int `json:"closed"`
	TotalMessages int `json:"total_messages"`
}
