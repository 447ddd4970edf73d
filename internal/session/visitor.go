package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/assistant"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/realtime"
)

// VisitorAPI is the slice of the REST client the visitor session needs
type VisitorAPI interface {
	CreateConversation(ctx context.Context, req *domain.CreateConversationRequest) (*domain.Conversation, error)
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListMessages(ctx context.Context, id string, limit, offset int) (*domain.MessagePage, error)
	SendMessage(ctx context.Context, id, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, id string) error
	InitAssistant(ctx context.Context, id string) (*domain.Message, error)
	SubmitSelection(ctx context.Context, id, optionKey, label string) (*domain.SelectionResult, error)
}

// Realtime is the transport surface shared by both session kinds
type Realtime interface {
	Subscribe(topic string, handler realtime.Handler) (*realtime.Subscription, error)
	Unsubscribe(sub *realtime.Subscription) error
	Close() error
}

// VisitorSession owns one visitor's active conversation: it merges
// REST-loaded history with live pushed messages, deduplicates by message id,
// and drives the decision-tree assistant while in automated mode.
type VisitorSession struct {
	api      VisitorAPI
	rt       Realtime
	engine   *assistant.Engine
	log      *zap.Logger
	pageSize int

	mu            sync.Mutex
	conv          *domain.Conversation
	messages      []domain.Message
	seen          map[string]struct{}
	node          assistant.Node
	assistantMode bool
	assistantInit bool
	msgSub        *realtime.Subscription
	updSub        *realtime.Subscription
}

// NewVisitorSession creates a session. The realtime client must already be
// connected (or connect later; subscriptions are replayed).
func NewVisitorSession(api VisitorAPI, rt Realtime, engine *assistant.Engine, pageSize int, logger *zap.Logger) *VisitorSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &VisitorSession{
		api:      api,
		rt:       rt,
		engine:   engine,
		log:      logger,
		pageSize: pageSize,
		seen:     make(map[string]struct{}),
	}
}

// Open adopts an existing pending or open conversation if the visitor has
// one. It returns false when there is none, in which case the caller offers
// StartAssistant or RequestAgent.
func (s *VisitorSession) Open(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.conv != nil {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		return false, err
	}
	for i := range convs {
		if convs[i].Active() {
			return true, s.adopt(ctx, &convs[i])
		}
	}
	return false, nil
}

// StartAssistant creates a conversation in automated mode and triggers the
// idempotent assistant initialization exactly once.
func (s *VisitorSession) StartAssistant(ctx context.Context, req *domain.CreateConversationRequest) error {
	conv, err := s.api.CreateConversation(ctx, req)
	if err != nil {
		return err
	}
	if err := s.adopt(ctx, conv); err != nil {
		return err
	}

	s.mu.Lock()
	s.assistantMode = true
	s.node = s.engine.Root()
	alreadyInit := s.assistantInit
	s.assistantInit = true
	s.mu.Unlock()

	if alreadyInit {
		return nil
	}
	welcome, err := s.api.InitAssistant(ctx, conv.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.insertLocked(*welcome)
	s.mu.Unlock()
	return nil
}

// RequestAgent creates a conversation waiting for a human agent
func (s *VisitorSession) RequestAgent(ctx context.Context, req *domain.CreateConversationRequest) error {
	conv, err := s.api.CreateConversation(ctx, req)
	if err != nil {
		return err
	}
	return s.adopt(ctx, conv)
}

// adopt takes ownership of conv: loads history and opens subscriptions
func (s *VisitorSession) adopt(ctx context.Context, conv *domain.Conversation) error {
	page, err := s.api.ListMessages(ctx, conv.ID, s.pageSize, 0)
	if err != nil {
		return err
	}

	msgSub, err := s.rt.Subscribe(domain.ConversationMessagesTopic(conv.ID), s.onMessage)
	if err != nil {
		return err
	}
	updSub, err := s.rt.Subscribe(domain.TopicConversationsUpdate, s.onConversationUpdate)
	if err != nil {
		s.rt.Unsubscribe(msgSub)
		return err
	}

	s.mu.Lock()
	s.conv = conv
	s.msgSub = msgSub
	s.updSub = updSub
	if conv.AssistantStarted && conv.Status == domain.StatusPending {
		s.assistantMode = true
		s.assistantInit = true
		s.node = s.engine.Root()
	}
	// History arrives newest first; replay it oldest first
	for i := len(page.Messages) - 1; i >= 0; i-- {
		s.insertLocked(page.Messages[i])
	}
	s.mu.Unlock()
	return nil
}

// Send appends content to the conversation. The message list is updated
// optimistically with a provisional entry which is replaced by the
// authoritative copy from the send response, or removed on failure. Sending
// on a closed conversation is rejected before any network call.
func (s *VisitorSession) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return domain.ErrNoConversation
	}
	if s.conv.Status == domain.StatusClosed {
		s.mu.Unlock()
		return domain.ErrConversationClosed
	}
	provisional := domain.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: s.conv.ID,
		Content:        content,
		SenderRole:     domain.RoleVisitor,
		SenderName:     s.conv.VisitorName,
		CreatedAt:      time.Now(),
		Provisional:    true,
	}
	convID := s.conv.ID
	s.insertLocked(provisional)
	s.mu.Unlock()

	msg, err := s.api.SendMessage(ctx, convID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(provisional.ID)
	if err != nil {
		return err
	}
	s.insertLocked(*msg)
	return nil
}

// Choose resolves the selected option against the decision tree and
// synthesizes the bot response locally; the selection is persisted through
// the REST call in parallel so the transcript stays durable.
func (s *VisitorSession) Choose(ctx context.Context, optionKey, label string) (assistant.Node, error) {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return assistant.Node{}, domain.ErrNoConversation
	}
	if !s.assistantMode {
		s.mu.Unlock()
		return assistant.Node{}, fmt.Errorf("choose: conversation is not in automated mode")
	}
	if s.conv.Status == domain.StatusClosed {
		s.mu.Unlock()
		return assistant.Node{}, domain.ErrConversationClosed
	}
	convID := s.conv.ID
	visitorName := s.conv.VisitorName

	node := s.engine.Resolve(optionKey)
	s.node = node

	selection := domain.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: convID,
		Content:        label,
		SenderRole:     domain.RoleVisitor,
		SenderName:     visitorName,
		CreatedAt:      time.Now(),
		Provisional:    true,
	}
	reply := domain.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: convID,
		Content:        node.Body,
		SenderRole:     domain.RoleBot,
		SenderName:     "Assistant",
		CreatedAt:      time.Now(),
		Provisional:    true,
	}
	s.insertLocked(selection)
	s.insertLocked(reply)
	s.mu.Unlock()

	result, err := s.api.SubmitSelection(ctx, convID, optionKey, label)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(selection.ID)
	s.removeLocked(reply.ID)
	if err != nil {
		return assistant.Node{}, err
	}
	s.insertLocked(result.Selection)
	s.insertLocked(result.Reply)
	return node, nil
}

// MarkRead clears the visitor-side unread counter
func (s *VisitorSession) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	if conv == nil {
		return domain.ErrNoConversation
	}
	return s.api.MarkRead(ctx, conv.ID)
}

// onMessage handles the per-conversation message topic
func (s *VisitorSession) onMessage(topic string, payload []byte) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("bad message event", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil || msg.ConversationID != s.conv.ID {
		return
	}
	s.insertLocked(msg)
}

// onConversationUpdate refetches the conversation when a broadcast update
// names the one we hold
func (s *VisitorSession) onConversationUpdate(topic string, payload []byte) {
	var id string
	if err := json.Unmarshal(payload, &id); err != nil {
		s.log.Warn("bad conversation update", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.mu.Lock()
	match := s.conv != nil && s.conv.ID == id
	s.mu.Unlock()
	if !match {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conv, err := s.api.GetConversation(ctx, id)
	if err != nil {
		s.log.Warn("refetch conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil || s.conv.ID != conv.ID {
		return
	}
	s.conv = conv
	if conv.Status == domain.StatusOpen {
		// An agent picked up: automated mode ends
		s.assistantMode = false
	}
}

// insertLocked appends msg in chronological position after the id-based
// deduplication check. Callers hold s.mu.
func (s *VisitorSession) insertLocked(msg domain.Message) {
	if _, dup := s.seen[msg.ID]; dup {
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	for i := len(s.messages) - 1; i > 0; i-- {
		if !s.messages[i].CreatedAt.Before(s.messages[i-1].CreatedAt) {
			break
		}
		s.messages[i], s.messages[i-1] = s.messages[i-1], s.messages[i]
	}
}

// removeLocked drops a provisional entry by id. Callers hold s.mu.
func (s *VisitorSession) removeLocked(id string) {
	delete(s.seen, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Conversation returns a copy of the held conversation, or nil
func (s *VisitorSession) Conversation() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	c := *s.conv
	return &c
}

// Messages returns the rendered transcript, oldest first
func (s *VisitorSession) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CurrentNode returns the decision-tree node the visitor is on
func (s *VisitorSession) CurrentNode() assistant.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// AssistantMode reports whether the conversation is bot-driven
func (s *VisitorSession) AssistantMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assistantMode
}

// Close tears down the subscriptions and the transport connection. A
// re-opened widget builds a fresh session and a fresh connection.
func (s *VisitorSession) Close() error {
	s.mu.Lock()
	msgSub, updSub := s.msgSub, s.updSub
	s.msgSub, s.updSub = nil, nil
	s.mu.Unlock()

	s.rt.Unsubscribe(msgSub)
	s.rt.Unsubscribe(updSub)
	return s.rt.Close()
}
