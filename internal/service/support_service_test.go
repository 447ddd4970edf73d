package service

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/assistant"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/repository"
)

// recordingPublisher captures published events per topic
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic   string
	payload any
}

func (p *recordingPublisher) Publish(topic string, payload any) {
	p.mu.Lock()
	p.events = append(p.events, publishedEvent{topic: topic, payload: payload})
	p.mu.Unlock()
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

func newTestService(t *testing.T) (*SupportService, *recordingPublisher) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "support.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &recordingPublisher{}
	svc := NewSupportService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		assistant.NewEngine(),
		pub,
		zap.NewNop(),
	)
	return svc, pub
}

func newConversation(t *testing.T, svc *SupportService, visitorID string) *domain.Conversation {
	t.Helper()
	conv, err := svc.CreateOrGet(visitorID, &domain.CreateConversationRequest{VisitorName: "Visitor " + visitorID})
	require.NoError(t, err)
	return conv
}

func TestCreateOrGetReusesActiveConversation(t *testing.T) {
	svc, pub := newTestService(t)

	first := newConversation(t, svc, "v1")
	assert.Contains(t, pub.topics(), domain.TopicNewConversations)

	pub.reset()
	second := newConversation(t, svc, "v1")
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, pub.topics(), "reusing a conversation publishes nothing")

	// A closed conversation is not reused
	_, err := svc.Assign(first.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)
	_, err = svc.Close(first.ID)
	require.NoError(t, err)
	third := newConversation(t, svc, "v1")
	assert.NotEqual(t, first.ID, third.ID)
}

func TestSendMessagePublishesOnBothTopics(t *testing.T) {
	svc, pub := newTestService(t)
	conv := newConversation(t, svc, "v1")
	pub.reset()

	msg, err := svc.SendMessage(conv.ID, "hello", domain.RoleVisitor)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	topics := pub.topics()
	assert.Contains(t, topics, domain.ConversationMessagesTopic(conv.ID))
	assert.Contains(t, topics, domain.TopicAdminMessages)
	assert.Contains(t, topics, domain.TopicConversationsUpdate)

	// Both message topics carry the same id, the clients' dedup key
	var ids []string
	for _, e := range pub.events {
		if m, ok := e.payload.(*domain.Message); ok {
			ids = append(ids, m.ID)
		}
	}
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
}

func TestSendMessageOnClosedConversation(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")
	_, err := svc.Close(conv.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(conv.ID, "too late", domain.RoleVisitor)
	assert.ErrorIs(t, err, domain.ErrConversationClosed)
}

func TestAdminSendBeforeAssignRejected(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")

	// The visitor (and the bot flow) keep chatting while pending, but an
	// admin has no identity on the conversation until Assign.
	_, err := svc.SendMessage(conv.ID, "hello from queue", domain.RoleVisitor)
	require.NoError(t, err)

	_, err = svc.SendMessage(conv.ID, "taking this one", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrConversationPending)

	_, err = svc.Assign(conv.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)

	msg, err := svc.SendMessage(conv.ID, "taking this one", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "Alice", msg.SenderName)
}

func TestAssignLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")

	assigned, err := svc.Assign(conv.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, assigned.Status)
	assert.Equal(t, "a1", assigned.AdminID)

	// Same admin re-assigning is idempotent
	again, err := svc.Assign(conv.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, assigned.ID, again.ID)

	// A different admin loses
	_, err = svc.Assign(conv.ID, &domain.AssignRequest{AdminID: "a2", AdminName: "Bob"})
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	// The pickup left a system notice in the transcript
	page, err := svc.Messages(conv.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Messages)
	assert.Equal(t, domain.RoleSystem, page.Messages[0].SenderRole)
	assert.Contains(t, page.Messages[0].Content, "Alice")
}

func TestAssignRejectsBusyAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	first := newConversation(t, svc, "v1")
	second := newConversation(t, svc, "v2")

	_, err := svc.Assign(first.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)

	_, err = svc.Assign(second.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	assert.ErrorIs(t, err, domain.ErrAdminBusy)

	// Closing the first conversation frees the admin
	_, err = svc.Close(first.ID)
	require.NoError(t, err)
	_, err = svc.Assign(second.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	assert.NoError(t, err)
}

func TestCloseAppendsNoticeAndIsTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")

	closed, err := svc.Close(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)

	page, err := svc.Messages(conv.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Messages)
	assert.Equal(t, domain.RoleSystem, page.Messages[0].SenderRole)

	_, err = svc.Close(conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationClosed)
}

func TestDeleteOnlyClosed(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")

	err := svc.Delete(conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotClosed)

	_, err = svc.Close(conv.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(conv.ID))

	_, err = svc.Get(conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAllClosedBroadcastsEachID(t *testing.T) {
	svc, pub := newTestService(t)
	c1 := newConversation(t, svc, "v1")
	c2 := newConversation(t, svc, "v2")
	newConversation(t, svc, "v3")
	_, err := svc.Close(c1.ID)
	require.NoError(t, err)
	_, err = svc.Close(c2.ID)
	require.NoError(t, err)

	pub.reset()
	n, err := svc.DeleteAllClosed()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	updates := 0
	for _, topic := range pub.topics() {
		if topic == domain.TopicConversationsUpdate {
			updates++
		}
	}
	assert.Equal(t, 2, updates, "each deleted conversation is broadcast so consoles purge it")
}

func TestInitAssistantEmitsWelcomeOnce(t *testing.T) {
	svc, pub := newTestService(t)
	conv := newConversation(t, svc, "v1")
	pub.reset()

	welcome, err := svc.InitAssistant(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBot, welcome.SenderRole)
	assert.NotEmpty(t, welcome.Content)
	firstEvents := len(pub.topics())
	assert.NotZero(t, firstEvents)

	// The second init returns the stored welcome without a new fan-out
	pub.reset()
	again, err := svc.InitAssistant(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, welcome.ID, again.ID)
	assert.Empty(t, pub.topics())

	page, err := svc.Messages(conv.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSubmitSelectionPersistsBothMessages(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")
	_, err := svc.InitAssistant(conv.ID)
	require.NoError(t, err)

	result, err := svc.SubmitSelection(conv.ID, &domain.SelectionRequest{OptionKey: "products", Label: "Products"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleVisitor, result.Selection.SenderRole)
	assert.Equal(t, "Products", result.Selection.Content)
	assert.Equal(t, domain.RoleBot, result.Reply.SenderRole)
	assert.NotEqual(t, result.Selection.ID, result.Reply.ID)

	page, err := svc.Messages(conv.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestSubmitSelectionTransferKeepsPending(t *testing.T) {
	svc, _ := newTestService(t)
	conv := newConversation(t, svc, "v1")
	_, err := svc.InitAssistant(conv.ID)
	require.NoError(t, err)

	result, err := svc.SubmitSelection(conv.ID, &domain.SelectionRequest{OptionKey: assistant.KeyTransferAgent, Label: "Talk to a human agent"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBot, result.Reply.SenderRole)

	// The conversation stays pending until an admin claims it
	loaded, err := svc.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, loaded.Status)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	c1 := newConversation(t, svc, "v1")
	newConversation(t, svc, "v2")
	_, err := svc.Assign(c1.ID, &domain.AssignRequest{AdminID: "a1", AdminName: "Alice"})
	require.NoError(t, err)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Open)
	assert.Zero(t, stats.Closed)
	assert.Equal(t, 1, stats.TotalMessages)
}
