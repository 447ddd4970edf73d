package service

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/assistant"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/repository"
)

// Publisher fans an event out to every realtime subscriber of a topic
type Publisher interface {
	Publish(topic string, payload any)
}

// SupportService implements the conversation lifecycle, message fan-out and
// assistant resolution on top of the repositories
type SupportService struct {
	convRepo *repository.ConversationRepository
	msgRepo  *repository.MessageRepository
	engine   *assistant.Engine
	pub      Publisher
	log      *zap.Logger
}

// NewSupportService creates a new support service
func NewSupportService(convRepo *repository.ConversationRepository, msgRepo *repository.MessageRepository, engine *assistant.Engine, pub Publisher, log *zap.Logger) *SupportService {
	return &SupportService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		engine:   engine,
		pub:      pub,
		log:      log,
	}
}

// CreateOrGet returns the visitor's existing active conversation, or creates
// a fresh pending one. A visitor never holds two active conversations.
func (s *SupportService) CreateOrGet(visitorID string, req *domain.CreateConversationRequest) (*domain.Conversation, error) {
	existing, err := s.convRepo.ListByVisitor(visitorID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for i := range existing {
		if existing[i].Active() {
			return &existing[i], nil
		}
	}

	conv := &domain.Conversation{
		VisitorID:    visitorID,
		VisitorName:  req.VisitorName,
		VisitorEmail: req.VisitorEmail,
		Subject:      req.Subject,
		Status:       domain.StatusPending,
	}
	if err := s.convRepo.Create(conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("visitor_id", conv.VisitorID))

	s.pub.Publish(domain.TopicNewConversations, conv)
	return conv, nil
}

// Get returns a conversation or domain.ErrNotFound
func (s *SupportService) Get(id string) (*domain.Conversation, error) {
	conv, err := s.convRepo.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}

// ListByVisitor returns a visitor's conversations
func (s *SupportService) ListByVisitor(visitorID string) ([]domain.Conversation, error) {
	return s.convRepo.ListByVisitor(visitorID)
}

// ListByStatus pages conversations in one status
func (s *SupportService) ListByStatus(status domain.ConversationStatus, limit, offset int) (*domain.ConversationList, error) {
	if limit <= 0 {
		limit = 20
	}
	convs, total, err := s.convRepo.ListByStatus(status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return &domain.ConversationList{Conversations: convs, Total: total}, nil
}

// Messages pages a conversation's messages newest first
func (s *SupportService) Messages(conversationID string, limit, offset int) (*domain.MessagePage, error) {
	if _, err := s.Get(conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	msgs, total, err := s.msgRepo.PageDesc(conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("page messages: %w", err)
	}
	return &domain.MessagePage{Messages: msgs, Total: total}, nil
}

// SendMessage stores a message in an active conversation and fans it out.
// The sender's name is resolved from the conversation record so clients
// cannot spoof it.
func (s *SupportService) SendMessage(conversationID, content string, role domain.SenderRole) (*domain.Message, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.StatusClosed {
		return nil, domain.ErrConversationClosed
	}
	if role == domain.RoleAdmin && conv.Status == domain.StatusPending {
		return nil, domain.ErrConversationPending
	}

	senderName := conv.VisitorName
	if role == domain.RoleAdmin {
		senderName = conv.AdminName
	}
	return s.appendMessage(conv.ID, content, role, senderName)
}

// appendMessage stores a message, updates list metadata and publishes the
// full message on both the per-conversation topic and the admin broadcast.
// Subscribers on both topics receive the same message id, which is what the
// clients deduplicate on.
func (s *SupportService) appendMessage(conversationID, content string, role domain.SenderRole, senderName string) (*domain.Message, error) {
	msg := &domain.Message{
		ConversationID: conversationID,
		Content:        content,
		SenderRole:     role,
		SenderName:     senderName,
	}
	if err := s.msgRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	if err := s.convRepo.TouchLastMessage(conversationID, content, msg.CreatedAt, role); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	s.pub.Publish(domain.ConversationMessagesTopic(conversationID), msg)
	s.pub.Publish(domain.TopicAdminMessages, msg)
	s.publishConversationID(domain.TopicConversationsUpdate, conversationID)
	return msg, nil
}

// Assign claims a pending conversation for an admin. The claim is atomic: of
// two racing admins exactly one wins and the loser gets
// domain.ErrAlreadyAssigned. An admin already holding an open conversation
// gets domain.ErrAdminBusy before any claim attempt.
func (s *SupportService) Assign(conversationID string, req *domain.AssignRequest) (*domain.Conversation, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, err
	}
	switch conv.Status {
	case domain.StatusClosed:
		return nil, domain.ErrConversationClosed
	case domain.StatusOpen:
		if conv.AdminID == req.AdminID {
			return conv, nil
		}
		return nil, domain.ErrAlreadyAssigned
	}

	busy, err := s.convRepo.HasOpenForAdmin(req.AdminID)
	if err != nil {
		return nil, fmt.Errorf("check admin load: %w", err)
	}
	if busy {
		return nil, domain.ErrAdminBusy
	}

	claimed, err := s.convRepo.AssignIfPending(conversationID, req.AdminID, req.AdminName)
	if err != nil {
		return nil, fmt.Errorf("assign conversation: %w", err)
	}
	if !claimed {
		return nil, domain.ErrAlreadyAssigned
	}

	s.log.Info("conversation assigned",
		zap.String("conversation_id", conversationID),
		zap.String("admin_id", req.AdminID))

	joined := req.AdminName
	if joined == "" {
		joined = "An agent"
	}
	if _, err := s.appendMessage(conversationID, joined+" joined the conversation", domain.RoleSystem, ""); err != nil {
		s.log.Warn("join notice failed", zap.Error(err))
	}
	s.publishConversationID(domain.TopicConversationsUpdate, conversationID)
	return s.Get(conversationID)
}

// Close transitions a conversation to closed and records a closure notice
func (s *SupportService) Close(conversationID string) (*domain.Conversation, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanTransition(domain.StatusClosed) {
		return nil, domain.ErrConversationClosed
	}

	closed, err := s.convRepo.CloseIfActive(conversationID)
	if err != nil {
		return nil, fmt.Errorf("close conversation: %w", err)
	}
	if !closed {
		return nil, domain.ErrConversationClosed
	}

	s.log.Info("conversation closed", zap.String("conversation_id", conversationID))

	// The conversation is already closed, so bypass the SendMessage guard.
	if _, err := s.appendMessage(conversationID, "This conversation has been closed.", domain.RoleSystem, ""); err != nil {
		s.log.Warn("closure notice failed", zap.Error(err))
	}
	return s.Get(conversationID)
}

// Delete removes a closed conversation. Active conversations cannot be
// deleted.
func (s *SupportService) Delete(conversationID string) error {
	conv, err := s.Get(conversationID)
	if err != nil {
		return err
	}
	if conv.Status != domain.StatusClosed {
		return domain.ErrConversationNotClosed
	}

	deleted, err := s.convRepo.DeleteIfClosed(conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if !deleted {
		return domain.ErrConversationNotClosed
	}
	s.publishConversationID(domain.TopicConversationsUpdate, conversationID)
	return nil
}

// DeleteAllClosed removes every closed conversation and returns how many
func (s *SupportService) DeleteAllClosed() (int, error) {
	ids, err := s.convRepo.ListClosedIDs()
	if err != nil {
		return 0, fmt.Errorf("list closed: %w", err)
	}
	n, err := s.convRepo.DeleteAllClosed()
	if err != nil {
		return 0, fmt.Errorf("delete closed: %w", err)
	}
	for _, id := range ids {
		s.publishConversationID(domain.TopicConversationsUpdate, id)
	}
	return n, nil
}

// MarkRead clears one side's unread counter
func (s *SupportService) MarkRead(conversationID string, side domain.SenderRole) error {
	if _, err := s.Get(conversationID); err != nil {
		return err
	}
	if err := s.convRepo.MarkRead(conversationID, side); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if err := s.msgRepo.MarkRead(conversationID, side); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// InitAssistant starts the decision-tree assistant in a conversation. The
// first call stores and publishes the welcome message; repeated calls return
// the message already stored.
func (s *SupportService) InitAssistant(conversationID string) (*domain.Message, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.StatusClosed {
		return nil, domain.ErrConversationClosed
	}

	first, err := s.convRepo.SetAssistantStarted(conversationID)
	if err != nil {
		return nil, fmt.Errorf("mark assistant started: %w", err)
	}
	if !first {
		msg, err := s.msgRepo.FirstByRole(conversationID, domain.RoleBot)
		if err != nil {
			return nil, fmt.Errorf("load welcome: %w", err)
		}
		if msg != nil {
			return msg, nil
		}
		// Flag set but no stored welcome: fall through and store one.
	}

	root := s.engine.Root()
	return s.appendMessage(conversationID, renderNode(root), domain.RoleBot, "Assistant")
}

// SubmitSelection records the visitor's menu choice and the assistant's
// reply. A transfer selection leaves the conversation pending for a human
// agent to claim.
func (s *SupportService) SubmitSelection(conversationID string, req *domain.SelectionRequest) (*domain.SelectionResult, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.StatusClosed {
		return nil, domain.ErrConversationClosed
	}

	label := req.Label
	if label == "" {
		label = req.OptionKey
	}
	selection, err := s.appendMessage(conversationID, label, domain.RoleVisitor, conv.VisitorName)
	if err != nil {
		return nil, err
	}

	node := s.engine.Resolve(req.OptionKey)
	reply, err := s.appendMessage(conversationID, renderNode(node), domain.RoleBot, "Assistant")
	if err != nil {
		return nil, err
	}

	if node.Kind == assistant.KindTransfer {
		s.log.Info("agent transfer requested", zap.String("conversation_id", conversationID))
		s.publishConversationID(domain.TopicConversationsUpdate, conversationID)
	}
	return &domain.SelectionResult{Selection: *selection, Reply: *reply}, nil
}

// AssistantNode resolves an option key to its node for rendering
func (s *SupportService) AssistantNode(optionKey string) assistant.Node {
	if optionKey == "" {
		return s.engine.Root()
	}
	return s.engine.Resolve(optionKey)
}

// Stats summarizes the support queue for the admin dashboard
func (s *SupportService) Stats() (*domain.AdminStats, error) {
	stats := &domain.AdminStats{}
	var err error
	if stats.Pending, err = s.convRepo.CountByStatus(domain.StatusPending); err != nil {
		return nil, err
	}
	if stats.Open, err = s.convRepo.CountByStatus(domain.StatusOpen); err != nil {
		return nil, err
	}
	if stats.Closed, err = s.convRepo.CountByStatus(domain.StatusClosed); err != nil {
		return nil, err
	}
	if stats.TotalMessages, err = s.msgRepo.Count(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SupportService) publishConversationID(topic, id string) {
	raw, _ := json.Marshal(id)
	s.pub.Publish(topic, json.RawMessage(raw))
}

// renderNode flattens a tree node into message text. Options render as
// numbered lines so the message reads sensibly in any client.
func renderNode(node assistant.Node) string {
	text := node.Body
	for i, opt := range node.Options {
		text += fmt.Sprintf("\n%d. %s", i+1, opt.Label)
	}
	return text
}
