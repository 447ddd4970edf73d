package console

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/realtime"
)

// AdminAPI is the slice of the REST client the console needs
type AdminAPI interface {
	AdminListConversations(ctx context.Context, status domain.ConversationStatus, limit, offset int) (*domain.ConversationList, error)
	AdminGetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	Assign(ctx context.Context, id string, req *domain.AssignRequest) (*domain.Conversation, error)
	AdminListMessages(ctx context.Context, id string, limit, offset int) (*domain.MessagePage, error)
	AdminSendMessage(ctx context.Context, id, content string) (*domain.Message, error)
	AdminMarkRead(ctx context.Context, id string) error
	CloseConversation(ctx context.Context, id string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteAllClosed(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*domain.AdminStats, error)
}

// Realtime is the transport surface the console needs
type Realtime interface {
	Subscribe(topic string, handler realtime.Handler) (*realtime.Subscription, error)
	Unsubscribe(sub *realtime.Subscription) error
	Close() error
}

const listLimit = 100

// AdminSession owns the console's conversation queue. Every known
// conversation lives in exactly one of the three status lists; live events
// and REST reloads funnel through the same id-deduplicated message pipeline.
type AdminSession struct {
	api       AdminAPI
	rt        Realtime
	log       *zap.Logger
	adminID   string
	adminName string
	pageSize  int

	mu         sync.Mutex
	pending    []domain.Conversation
	active     []domain.Conversation
	closed     []domain.Conversation
	selectedID string
	messages   []domain.Message
	seen       map[string]struct{}
	convSub    *realtime.Subscription
	globalSubs []*realtime.Subscription
}

// NewAdminSession creates a console session for the given admin identity
func NewAdminSession(api AdminAPI, rt Realtime, adminID, adminName string, pageSize int, logger *zap.Logger) *AdminSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &AdminSession{
		api:       api,
		rt:        rt,
		log:       logger,
		adminID:   adminID,
		adminName: adminName,
		pageSize:  pageSize,
		seen:      make(map[string]struct{}),
	}
}

// Start opens the broadcast subscriptions and hydrates the three lists
func (s *AdminSession) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler realtime.Handler
	}{
		{domain.TopicNewConversations, s.onNewConversation},
		{domain.TopicConversationsUpdate, s.onConversationUpdate},
		{domain.TopicAdminMessages, s.onGlobalMessage},
	}
	for _, sub := range subs {
		handle, err := s.rt.Subscribe(sub.topic, sub.handler)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.globalSubs = append(s.globalSubs, handle)
		s.mu.Unlock()
	}
	return s.Refresh(ctx)
}

// Refresh reloads all three lists from the backend
func (s *AdminSession) Refresh(ctx context.Context) error {
	statuses := []domain.ConversationStatus{domain.StatusPending, domain.StatusOpen, domain.StatusClosed}
	lists := make([][]domain.Conversation, len(statuses))
	for i, status := range statuses {
		list, err := s.api.AdminListConversations(ctx, status, listLimit, 0)
		if err != nil {
			return err
		}
		lists[i] = list.Conversations
	}
	s.mu.Lock()
	s.pending, s.active, s.closed = lists[0], lists[1], lists[2]
	s.mu.Unlock()
	return nil
}

// Select loads the conversation's latest message page (reversed into
// chronological order) and swaps the per-conversation subscription: the
// previous one is torn down first so subscription growth stays O(1).
func (s *AdminSession) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.findLocked(id); !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	prev := s.convSub
	s.convSub = nil
	s.mu.Unlock()

	if prev != nil {
		s.rt.Unsubscribe(prev)
	}

	page, err := s.api.AdminListMessages(ctx, id, s.pageSize, 0)
	if err != nil {
		return err
	}
	sub, err := s.rt.Subscribe(domain.ConversationMessagesTopic(id), s.onConvMessage)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selectedID = id
	s.convSub = sub
	s.messages = nil
	s.seen = make(map[string]struct{})
	for i := len(page.Messages) - 1; i >= 0; i-- {
		s.insertLocked(page.Messages[i])
	}
	if conv, ok := s.findLocked(id); ok {
		conv.AdminUnread = 0
	}
	s.mu.Unlock()

	if err := s.api.AdminMarkRead(ctx, id); err != nil {
		s.log.Warn("mark read failed", zap.String("conversation_id", id), zap.Error(err))
	}
	return nil
}

// Assign requests exclusive ownership of a pending conversation. The
// one-active-conversation-per-admin conflict surfaces as
// errors.Is(err, domain.ErrAdminBusy) and is never retried here; losing an
// assignment race refreshes the stale entry instead.
func (s *AdminSession) Assign(ctx context.Context, id string) error {
	conv, err := s.api.Assign(ctx, id, &domain.AssignRequest{AdminID: s.adminID, AdminName: s.adminName})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAssigned) {
			s.refetch(id)
		}
		return err
	}
	s.mu.Lock()
	s.placeLocked(*conv)
	s.mu.Unlock()
	return nil
}

// CloseConversation transitions an open conversation to closed. When it is
// the selected one, the final message page is reloaded once so the closure
// notice appended by the backend is rendered.
func (s *AdminSession) CloseConversation(ctx context.Context, id string) error {
	conv, err := s.api.CloseConversation(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.placeLocked(*conv)
	selected := s.selectedID == id
	s.mu.Unlock()

	if !selected {
		return nil
	}
	page, err := s.api.AdminListMessages(ctx, id, s.pageSize, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for i := len(page.Messages) - 1; i >= 0; i-- {
		s.insertLocked(page.Messages[i])
	}
	s.mu.Unlock()
	return nil
}

// Delete permanently removes a closed conversation. Deleting a conversation
// that is not closed is rejected locally before any network call.
func (s *AdminSession) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	conv, ok := s.findLocked(id)
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if conv.Status != domain.StatusClosed {
		s.mu.Unlock()
		return domain.ErrConversationNotClosed
	}
	s.mu.Unlock()

	if err := s.api.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.purge(id)
	return nil
}

// DeleteAllClosed permanently removes every closed conversation
func (s *AdminSession) DeleteAllClosed(ctx context.Context) (int, error) {
	deleted, err := s.api.DeleteAllClosed(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	ids := make([]string, 0, len(s.closed))
	for _, conv := range s.closed {
		ids = append(ids, conv.ID)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.purge(id)
	}
	return deleted, nil
}

// purge drops the conversation from the lists and clears the selection and
// message list when it was the selected one
func (s *AdminSession) purge(id string) {
	s.mu.Lock()
	s.removeLocked(id)
	wasSelected := s.selectedID == id
	var sub *realtime.Subscription
	if wasSelected {
		s.selectedID = ""
		s.messages = nil
		s.seen = make(map[string]struct{})
		sub = s.convSub
		s.convSub = nil
	}
	s.mu.Unlock()
	if sub != nil {
		s.rt.Unsubscribe(sub)
	}
}

// CanSend reports whether replying to the selected conversation is allowed.
// Pending (not yet assigned) and closed conversations reject sends; this
// mirrors the backend's authorization rule so the UI disables the controls.
func (s *AdminSession) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedID == "" {
		return false
	}
	conv, ok := s.findLocked(s.selectedID)
	return ok && conv.Status == domain.StatusOpen
}

// Send appends an admin reply to the selected conversation
func (s *AdminSession) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	id := s.selectedID
	if id == "" {
		s.mu.Unlock()
		return domain.ErrNoConversation
	}
	conv, ok := s.findLocked(id)
	if !ok || conv.Status != domain.StatusOpen {
		s.mu.Unlock()
		if ok && conv.Status == domain.StatusClosed {
			return domain.ErrConversationClosed
		}
		return domain.ErrNoConversation
	}
	s.mu.Unlock()

	msg, err := s.api.AdminSendMessage(ctx, id, content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.insertLocked(*msg)
	s.mu.Unlock()
	return nil
}

// Stats fetches the aggregate dashboard counters
func (s *AdminSession) Stats(ctx context.Context) (*domain.AdminStats, error) {
	return s.api.Stats(ctx)
}

// onNewConversation handles the new-conversation broadcast
func (s *AdminSession) onNewConversation(topic string, payload []byte) {
	var conv domain.Conversation
	if err := json.Unmarshal(payload, &conv); err != nil {
		s.log.Warn("bad conversation event", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeLocked(conv)
}

// onConversationUpdate refetches the named conversation and re-buckets it
func (s *AdminSession) onConversationUpdate(topic string, payload []byte) {
	var id string
	if err := json.Unmarshal(payload, &id); err != nil {
		s.log.Warn("bad conversation update", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.refetch(id)
}

func (s *AdminSession) refetch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conv, err := s.api.AdminGetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.purge(id)
			return
		}
		s.log.Warn("refetch conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.placeLocked(*conv)
	s.mu.Unlock()
}

// onGlobalMessage handles the all-conversations message broadcast: list
// metadata for every conversation, plus delivery into the open thread. The
// conversation-scoped topic delivers the same events for the selected
// conversation; the shared id check keeps each message rendered once.
func (s *AdminSession) onGlobalMessage(topic string, payload []byte) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("bad message event", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.findLocked(msg.ConversationID); ok {
		conv.LastMessage = msg.Content
		conv.LastMessageAt = msg.CreatedAt
		if msg.ConversationID != s.selectedID && msg.SenderRole == domain.RoleVisitor {
			conv.AdminUnread++
		}
	}
	if msg.ConversationID == s.selectedID {
		s.insertLocked(msg)
	}
}

// onConvMessage handles the conversation-scoped topic for the open thread
func (s *AdminSession) onConvMessage(topic string, payload []byte) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("bad message event", zap.String("topic", topic), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ConversationID != s.selectedID {
		return
	}
	s.insertLocked(msg)
}

// insertLocked appends msg chronologically after the id-deduplication check
func (s *AdminSession) insertLocked(msg domain.Message) {
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

// findLocked returns a pointer into whichever list holds id
func (s *AdminSession) findLocked(id string) (*domain.Conversation, bool) {
	for _, list := range [][]domain.Conversation{s.pending, s.active, s.closed} {
		for i := range list {
			if list[i].ID == id {
				return &list[i], true
			}
		}
	}
	return nil, false
}

// removeLocked drops id from whichever list holds it
func (s *AdminSession) removeLocked(id string) {
	filter := func(list []domain.Conversation) []domain.Conversation {
		for i := range list {
			if list[i].ID == id {
				return append(list[:i], list[i+1:]...)
			}
		}
		return list
	}
	s.pending = filter(s.pending)
	s.active = filter(s.active)
	s.closed = filter(s.closed)
}

// placeLocked puts conv in exactly the list matching its status, replacing
// any stale copy elsewhere
func (s *AdminSession) placeLocked(conv domain.Conversation) {
	s.removeLocked(conv.ID)
	switch conv.Status {
	case domain.StatusPending:
		s.pending = append([]domain.Conversation{conv}, s.pending...)
	case domain.StatusOpen:
		s.active = append([]domain.Conversation{conv}, s.active...)
	case domain.StatusClosed:
		s.closed = append([]domain.Conversation{conv}, s.closed...)
	}
}

// Counts returns the pending/active/closed list sizes
func (s *AdminSession) Counts() (pending, active, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), len(s.active), len(s.closed)
}

// Pending returns a copy of the pending list
func (s *AdminSession) Pending() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Conversation(nil), s.pending...)
}

// Active returns a copy of the open list
func (s *AdminSession) Active() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Conversation(nil), s.active...)
}

// Closed returns a copy of the closed list
func (s *AdminSession) Closed() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Conversation(nil), s.closed...)
}

// Selected returns a copy of the selected conversation, or nil
func (s *AdminSession) Selected() *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedID == "" {
		return nil
	}
	conv, ok := s.findLocked(s.selectedID)
	if !ok {
		return nil
	}
	c := *conv
	return &c
}

// Messages returns the open thread's transcript, oldest first
func (s *AdminSession) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close tears down every subscription and the transport connection
func (s *AdminSession) Close() error {
	s.mu.Lock()
	subs := append([]*realtime.Subscription(nil), s.globalSubs...)
	if s.convSub != nil {
		subs = append(subs, s.convSub)
	}
	s.globalSubs = nil
	s.convSub = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.rt.Unsubscribe(sub)
	}
	return s.rt.Close()
}
