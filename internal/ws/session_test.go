package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/auth"
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/delivery"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/presence"
	"github.com/Sterdam/murmur-sub001/internal/service"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	deps  Deps
	users *service.UserService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.Config{
		Env:                   "test",
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 15,
		MessageTTLDays:        7,
		HistoryTTLDays:        30,
		ContactRequestTTLDays: 30,
	}
	users := service.NewUserService(st, cfg)
	groups := service.NewGroupService(st)
	messages := service.NewMessageService(st, cfg)
	registry := presence.NewRegistry()
	hub := NewHub()
	router := delivery.NewRouter(messages, groups, registry, hub)
	return &sessionFixture{
		deps: Deps{
			Cfg:      cfg,
			Users:    users,
			Groups:   groups,
			Messages: messages,
			Router:   router,
			Registry: registry,
			Hub:      hub,
		},
		users: users,
	}
}

func (f *sessionFixture) newSession() *Session {
	return &Session{
		deps:     f.deps,
		send:     make(chan []byte, 256),
		state:    StateAuthenticating,
		channels: make(map[string]*Channel),
	}
}

// authenticate 完成握手并清空缓冲，含频道 join 事件（异步到达）。
func (f *sessionFixture) authenticate(t *testing.T, s *Session, token string) {
	t.Helper()
	require.False(t, s.handleEvent(context.Background(), inboundEvent{Type: "authenticate", Token: token}))
	time.Sleep(10 * time.Millisecond)
	drainEvents(t, s)
}

func (f *sessionFixture) registerUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	user, err := f.users.Register(context.Background(), username, "password123", "")
	require.NoError(t, err)
	token, err := auth.GenerateAccessToken(user.ID, f.deps.Cfg.JWTSecret, f.deps.Cfg.AccessTokenTTLMinutes)
	require.NoError(t, err)
	return user, token
}

// drainEvents 读空 send 缓冲并按事件类型归类。
func drainEvents(t *testing.T, s *Session) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case payload := <-s.send:
			var evt map[string]interface{}
			require.NoError(t, json.Unmarshal(payload, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(events []map[string]interface{}) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	return types
}

func TestSession_Authenticate(t *testing.T) {
	f := newSessionFixture(t)
	user, token := f.registerUser(t, "alice")
	s := f.newSession()

	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "authenticate", Token: token})
	assert.False(t, fatal)
	assert.Equal(t, StateAuthenticated, s.state)
	assert.True(t, f.deps.Registry.IsOnline(user.ID))
	assert.Contains(t, eventTypes(drainEvents(t, s)), "authenticated")

	// 认证后自动订阅私有频道。
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.deps.Hub.Online("user:"+user.ID))
}

func TestSession_Authenticate_BadToken(t *testing.T) {
	f := newSessionFixture(t)
	s := f.newSession()

	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "authenticate", Token: "garbage"})
	assert.True(t, fatal)
	assert.Equal(t, StateAuthenticating, s.state)
	assert.Contains(t, eventTypes(drainEvents(t, s)), delivery.EventError)
}

func TestSession_EventBeforeAuthentication(t *testing.T) {
	f := newSessionFixture(t)
	s := f.newSession()

	// 认证握手完成前任何其他事件都终止会话。
	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "direct-message", To: "x", Ciphertext: "ct"})
	assert.True(t, fatal)
}

func TestSession_MalformedEventRecoverable(t *testing.T) {
	f := newSessionFixture(t)
	_, token := f.registerUser(t, "alice")
	s := f.newSession()
	f.authenticate(t, s, token)

	// 载荷不完整：可恢复错误，会话保持打开。
	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "direct-message", To: "", Ciphertext: ""})
	assert.False(t, fatal)
	assert.Equal(t, StateAuthenticated, s.state)
	events := drainEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, delivery.EventError, events[0]["type"])

	// 未知事件类型同样可恢复。
	fatal = s.handleEvent(context.Background(), inboundEvent{Type: "no-such-event"})
	assert.False(t, fatal)
}

func TestSession_DirectMessage_OfflineReceipt(t *testing.T) {
	f := newSessionFixture(t)
	_, token := f.registerUser(t, "alice")
	bob, _ := f.registerUser(t, "bob")
	s := f.newSession()
	f.authenticate(t, s, token)

	fatal := s.handleEvent(context.Background(), inboundEvent{
		Type:        "direct-message",
		To:          bob.ID,
		Ciphertext:  "ct",
		KeyEnvelope: "env",
	})
	assert.False(t, fatal)

	events := drainEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, delivery.EventMessageDelivered, events[0]["type"])
	assert.Equal(t, false, events[0]["delivered"])
}

func TestSession_DirectMessage_OnlineReceipt(t *testing.T) {
	f := newSessionFixture(t)
	_, aliceToken := f.registerUser(t, "alice")
	bob, bobToken := f.registerUser(t, "bob")

	bobSession := f.newSession()
	f.authenticate(t, bobSession, bobToken)

	s := f.newSession()
	f.authenticate(t, s, aliceToken)

	require.False(t, s.handleEvent(context.Background(), inboundEvent{
		Type:        "direct-message",
		To:          bob.ID,
		Ciphertext:  "ct",
		KeyEnvelope: "env",
	}))

	events := drainEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0]["delivered"])

	bobEvents := drainEvents(t, bobSession)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, delivery.EventPrivateMessage, bobEvents[0]["type"])
}

func TestSession_MarkReadAccepted(t *testing.T) {
	f := newSessionFixture(t)
	_, token := f.registerUser(t, "alice")
	s := f.newSession()
	f.authenticate(t, s, token)

	// 占位操作：必须被接受且不报错。
	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "mark-read", MessageID: "m1"})
	assert.False(t, fatal)
	events := drainEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, "read-ack", events[0]["type"])
}

func TestSession_JoinGroup_NonMember(t *testing.T) {
	f := newSessionFixture(t)
	_, token := f.registerUser(t, "alice")
	s := f.newSession()
	f.authenticate(t, s, token)

	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "join-group", GroupID: "not-mine"})
	assert.False(t, fatal)
	events := drainEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, delivery.EventError, events[0]["type"])
}

func TestSession_CloseIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	user, token := f.registerUser(t, "alice")
	s := f.newSession()
	require.False(t, s.handleEvent(context.Background(), inboundEvent{Type: "authenticate", Token: token}))

	s.Close()
	assert.Equal(t, StateClosed, s.state)
	assert.False(t, f.deps.Registry.IsOnline(user.ID))

	// 二次关闭必须无害。
	s.Close()
	assert.False(t, f.deps.Registry.IsOnline(user.ID))

	// 关闭后的事件不再处理。
	fatal := s.handleEvent(context.Background(), inboundEvent{Type: "typing", To: user.ID})
	assert.True(t, fatal)
}

func TestSession_GroupSnapshotSubscription(t *testing.T) {
	f := newSessionFixture(t)
	user, token := f.registerUser(t, "alice")

	group, err := f.deps.Groups.Create(context.Background(), user.ID, "friends", nil)
	require.NoError(t, err)

	s := f.newSession()
	require.False(t, s.handleEvent(context.Background(), inboundEvent{Type: "authenticate", Token: token}))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, f.deps.Hub.Online(models.GroupConversationID(group.ID)))

	// leave-group 退订后群频道不再推送给该会话。
	require.False(t, s.handleEvent(context.Background(), inboundEvent{Type: "leave-group", GroupID: group.ID}))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, f.deps.Hub.Online(models.GroupConversationID(group.ID)))
}
