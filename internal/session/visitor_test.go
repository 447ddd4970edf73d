package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtuog/CDW-sub002/internal/assistant"
	"github.com/mtuog/CDW-sub002/internal/domain"
	"github.com/mtuog/CDW-sub002/internal/realtime"
)

// fakeRealtime records subscriptions and lets the test inject events
// synchronously.
type fakeRealtime struct {
	handlers map[string]realtime.Handler
	subs     map[*realtime.Subscription]string
	closed   bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		handlers: make(map[string]realtime.Handler),
		subs:     make(map[*realtime.Subscription]string),
	}
}

func (f *fakeRealtime) Subscribe(topic string, handler realtime.Handler) (*realtime.Subscription, error) {
	f.handlers[topic] = handler
	sub := &realtime.Subscription{}
	f.subs[sub] = topic
	return sub, nil
}

func (f *fakeRealtime) Unsubscribe(sub *realtime.Subscription) error {
	if topic, ok := f.subs[sub]; ok {
		delete(f.handlers, topic)
		delete(f.subs, sub)
	}
	return nil
}

func (f *fakeRealtime) Close() error {
	f.closed = true
	return nil
}

func (f *fakeRealtime) emit(t *testing.T, topic string, payload any) {
	t.Helper()
	handler, ok := f.handlers[topic]
	require.True(t, ok, "no subscription for topic %s", topic)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	handler(topic, raw)
}

// fakeVisitorAPI is an in-memory VisitorAPI with call counters
type fakeVisitorAPI struct {
	conv       *domain.Conversation
	history    []domain.Message
	sendCalls  int
	initCalls  int
	sendErr    error
	selectResp *domain.SelectionResult
}

func (f *fakeVisitorAPI) CreateConversation(ctx context.Context, req *domain.CreateConversationRequest) (*domain.Conversation, error) {
	if f.conv == nil {
		f.conv = &domain.Conversation{
			ID:          "conv-1",
			VisitorID:   "v1",
			VisitorName: req.VisitorName,
			Status:      domain.StatusPending,
		}
	}
	c := *f.conv
	return &c, nil
}

func (f *fakeVisitorAPI) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	if f.conv == nil {
		return nil, nil
	}
	return []domain.Conversation{*f.conv}, nil
}

func (f *fakeVisitorAPI) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, domain.ErrNotFound
	}
	c := *f.conv
	return &c, nil
}

func (f *fakeVisitorAPI) ListMessages(ctx context.Context, id string, limit, offset int) (*domain.MessagePage, error) {
	// Newest first, as the backend stores them
	out := make([]domain.Message, len(f.history))
	copy(out, f.history)
	return &domain.MessagePage{Messages: out, Total: len(out)}, nil
}

func (f *fakeVisitorAPI) SendMessage(ctx context.Context, id, content string) (*domain.Message, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &domain.Message{
		ID:             "srv-msg-1",
		ConversationID: id,
		Content:        content,
		SenderRole:     domain.RoleVisitor,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeVisitorAPI) MarkRead(ctx context.Context, id string) error { return nil }

func (f *fakeVisitorAPI) InitAssistant(ctx context.Context, id string) (*domain.Message, error) {
	f.initCalls++
	return &domain.Message{
		ID:             "welcome-1",
		ConversationID: id,
		Content:        "welcome",
		SenderRole:     domain.RoleBot,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeVisitorAPI) SubmitSelection(ctx context.Context, id, optionKey, label string) (*domain.SelectionResult, error) {
	if f.selectResp != nil {
		return f.selectResp, nil
	}
	now := time.Now()
	return &domain.SelectionResult{
		Selection: domain.Message{ID: "sel-1", ConversationID: id, Content: label, SenderRole: domain.RoleVisitor, CreatedAt: now},
		Reply:     domain.Message{ID: "rep-1", ConversationID: id, SenderRole: domain.RoleBot, CreatedAt: now.Add(time.Millisecond)},
	}, nil
}

func newTestSession(api VisitorAPI, rt Realtime) *VisitorSession {
	return NewVisitorSession(api, rt, assistant.NewEngine(), 20, nil)
}

func TestOpenWithoutConversation(t *testing.T) {
	s := newTestSession(&fakeVisitorAPI{}, newFakeRealtime())
	found, err := s.Open(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, s.Conversation())
}

func TestOpenAdoptsActiveConversation(t *testing.T) {
	now := time.Now()
	api := &fakeVisitorAPI{
		conv: &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusOpen},
		history: []domain.Message{
			{ID: "m2", ConversationID: "conv-1", Content: "second", CreatedAt: now},
			{ID: "m1", ConversationID: "conv-1", Content: "first", CreatedAt: now.Add(-time.Minute)},
		},
	}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)

	found, err := s.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, found)

	// History pages arrive newest first and render oldest first
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	_, hasMsgTopic := rt.handlers[domain.ConversationMessagesTopic("conv-1")]
	_, hasUpdTopic := rt.handlers[domain.TopicConversationsUpdate]
	assert.True(t, hasMsgTopic)
	assert.True(t, hasUpdTopic)
}

func TestSendReconcilesProvisional(t *testing.T) {
	api := &fakeVisitorAPI{conv: &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusOpen}}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)
	_, err := s.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "hello"))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-msg-1", msgs[0].ID)
	assert.False(t, msgs[0].Provisional)

	// The live event for the same id is a duplicate and must not re-render
	rt.emit(t, domain.ConversationMessagesTopic("conv-1"), domain.Message{
		ID: "srv-msg-1", ConversationID: "conv-1", Content: "hello", SenderRole: domain.RoleVisitor,
	})
	assert.Len(t, s.Messages(), 1)
}

func TestSendFailureRemovesProvisional(t *testing.T) {
	api := &fakeVisitorAPI{
		conv:    &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusOpen},
		sendErr: errors.New("backend down"),
	}
	s := newTestSession(api, newFakeRealtime())
	_, err := s.Open(context.Background())
	require.NoError(t, err)

	require.Error(t, s.Send(context.Background(), "hello"))
	assert.Empty(t, s.Messages())
}

func TestSendOnClosedConversationRejectedLocally(t *testing.T) {
	api := &fakeVisitorAPI{conv: &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusOpen}}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)
	_, err := s.Open(context.Background())
	require.NoError(t, err)

	api.conv.Status = domain.StatusClosed
	rt.emit(t, domain.TopicConversationsUpdate, "conv-1")

	err = s.Send(context.Background(), "too late")
	assert.ErrorIs(t, err, domain.ErrConversationClosed)
	assert.Zero(t, api.sendCalls, "closed conversation must be rejected before any network call")
}

func TestStartAssistantInitializesOnce(t *testing.T) {
	api := &fakeVisitorAPI{}
	s := newTestSession(api, newFakeRealtime())

	require.NoError(t, s.StartAssistant(context.Background(), &domain.CreateConversationRequest{VisitorName: "Lan"}))
	require.NoError(t, s.StartAssistant(context.Background(), &domain.CreateConversationRequest{VisitorName: "Lan"}))

	assert.Equal(t, 1, api.initCalls)
	assert.True(t, s.AssistantMode())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleBot, msgs[0].SenderRole)
}

func TestChooseReconcilesSelection(t *testing.T) {
	api := &fakeVisitorAPI{}
	s := newTestSession(api, newFakeRealtime())
	require.NoError(t, s.StartAssistant(context.Background(), &domain.CreateConversationRequest{VisitorName: "Lan"}))

	node, err := s.Choose(context.Background(), "products", "Products")
	require.NoError(t, err)
	assert.Equal(t, "products", node.Key)
	assert.Equal(t, "products", s.CurrentNode().Key)

	// Welcome plus the authoritative selection and reply; no provisional left
	msgs := s.Messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.False(t, m.Provisional)
	}
	assert.Equal(t, "sel-1", msgs[1].ID)
	assert.Equal(t, "rep-1", msgs[2].ID)
}

func TestAgentPickupEndsAssistantMode(t *testing.T) {
	api := &fakeVisitorAPI{}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)
	require.NoError(t, s.StartAssistant(context.Background(), &domain.CreateConversationRequest{VisitorName: "Lan"}))
	require.True(t, s.AssistantMode())

	api.conv.Status = domain.StatusOpen
	api.conv.AdminID = "a1"
	rt.emit(t, domain.TopicConversationsUpdate, "conv-1")

	assert.False(t, s.AssistantMode())
	require.NotNil(t, s.Conversation())
	assert.Equal(t, domain.StatusOpen, s.Conversation().Status)

	_, err := s.Choose(context.Background(), "products", "Products")
	assert.Error(t, err)
}

func TestForeignUpdateIgnored(t *testing.T) {
	api := &fakeVisitorAPI{conv: &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusPending}}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)
	_, err := s.Open(context.Background())
	require.NoError(t, err)

	rt.emit(t, domain.TopicConversationsUpdate, "some-other-conversation")
	assert.Equal(t, domain.StatusPending, s.Conversation().Status)
}

func TestCloseTearsDownTransport(t *testing.T) {
	api := &fakeVisitorAPI{conv: &domain.Conversation{ID: "conv-1", VisitorID: "v1", Status: domain.StatusOpen}}
	rt := newFakeRealtime()
	s := newTestSession(api, rt)
	_, err := s.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, rt.closed)
	assert.Empty(t, rt.handlers)
}
