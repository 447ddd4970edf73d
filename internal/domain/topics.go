package domain

// Topics on the realtime channel. Visitor and admin sides both receive the
// per-conversation message topic; the three admin.* topics broadcast across
// all conversations for list and badge updates.
const (
	// TopicNewConversations carries the full Conversation for every new
	// pending conversation
	TopicNewConversations = "admin.conversations.new"
	// TopicConversationsUpdate carries a conversation id as text whenever a
	// conversation's status or metadata changes
	TopicConversationsUpdate = "admin.conversations.update"
	// TopicAdminMessages carries the full Message for every new message in
	// any conversation
	TopicAdminMessages = "admin.messages"
)

// ConversationMessagesTopic is the per-conversation message topic, subscribed
// by the visitor owning the conversation and by the admin currently viewing it
func ConversationMessagesTopic(conversationID string) string {
	return "conversations." + conversationID + ".messages"
}
