package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/auth"
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/delivery"
	"github.com/Sterdam/murmur-sub001/internal/metrics"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/presence"
	"github.com/Sterdam/murmur-sub001/internal/service"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// State 是会话状态机的状态。迁移只发生在 readPump goroutine 里，
// 同一连接上的事件严格串行处理。
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

// Deps 聚合会话需要的全部依赖，Serve 和测试共用。
type Deps struct {
	Cfg      config.Config
	Users    *service.UserService
	Groups   *service.GroupService
	Messages *service.MessageService
	Router   *delivery.Router
	Registry *presence.Registry
	Hub      *Hub
}

// Session 是一条 websocket 连接的状态机。
// 实现 presence.Handle，投递路由直接往 send 缓冲里推。
type Session struct {
	deps     Deps
	conn     *websocket.Conn
	send     chan []byte
	state    State
	user     *models.User
	channels map[string]*Channel
	closeMu  sync.Mutex
}

// inboundEvent 是客户端事件的统一载荷，按 type 取用对应字段。
type inboundEvent struct {
	Type         string            `json:"type"`
	Token        string            `json:"token,omitempty"`
	To           string            `json:"to,omitempty"`
	GroupID      string            `json:"group_id,omitempty"`
	Ciphertext   string            `json:"ciphertext,omitempty"`
	KeyEnvelope  string            `json:"key_envelope,omitempty"`
	KeyEnvelopes map[string]string `json:"key_envelopes,omitempty"`
	IsTyping     bool              `json:"is_typing,omitempty"`
	MessageID    string            `json:"message_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 升级连接并运行会话。token 可以通过 query 参数携带（升级时
// 直接认证），也可以在升级后用 authenticate 事件作为第一帧提交。
func Serve(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		s := &Session{
			deps:     deps,
			conn:     conn,
			send:     make(chan []byte, 256),
			state:    StateConnecting,
			channels: make(map[string]*Channel),
		}
		s.state = StateAuthenticating
		go s.writePump()

		if token := c.Query("token"); token != "" {
			if err := s.authenticate(c.Request.Context(), token); err != nil {
				s.sendError(err)
				s.Close()
				return
			}
		}
		s.readPump()
	}
}

// Send 实现 presence.Handle。不阻塞，缓冲满返回 false。
func (s *Session) Send(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) UserID() string {
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) Username() string {
	if s.user == nil {
		return ""
	}
	return s.user.Username
}

// authenticate 完成 Authenticating -> Authenticated 的迁移：
// 校验 token、加载用户、登记 presence、订阅私有频道和认证时刻
// 的群成员快照。之后的群变动要靠客户端显式 join/leave。
func (s *Session) authenticate(ctx context.Context, token string) error {
	claims, err := auth.ParseAccessToken(token, s.deps.Cfg.JWTSecret)
	if err != nil {
		return errors.ErrInvalidToken
	}
	user, err := s.deps.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return errors.ErrInvalidToken
	}
	s.user = user
	s.state = StateAuthenticated
	s.deps.Registry.Register(user.ID, s)
	metrics.WsConnections.Inc()

	s.join("user:" + user.ID)
	groups, err := s.deps.Groups.UserGroups(ctx, user.ID)
	if err != nil {
		// 群快照加载失败不算认证失败，留给客户端显式 join。
		log.Warn().Err(err).Str("user_id", user.ID).Msg("group snapshot")
	}
	for _, g := range groups {
		s.join(models.GroupConversationID(g.ID))
	}
	s.Send(mustMarshal(map[string]interface{}{"type": "authenticated", "user_id": user.ID}))
	return nil
}

func (s *Session) join(channel string) {
	if _, ok := s.channels[channel]; ok {
		return
	}
	ch := s.deps.Hub.GetChannel(channel)
	s.channels[channel] = ch
	ch.subscribe <- s
}

func (s *Session) leave(channel string) {
	ch, ok := s.channels[channel]
	if !ok {
		return
	}
	delete(s.channels, channel)
	ch.unsub <- s
}

// handleEvent 按当前状态分发一个事件。
// 返回值指示会话是否应当关闭（认证失败、存储故障）。
func (s *Session) handleEvent(ctx context.Context, in inboundEvent) (fatal bool) {
	switch s.state {
	case StateAuthenticating:
		if in.Type != "authenticate" {
			s.sendError(errors.Unauthenticated("authenticate first"))
			return true
		}
		if err := s.authenticate(ctx, in.Token); err != nil {
			s.sendError(err)
			return true
		}
		return false
	case StateAuthenticated:
		return s.dispatch(ctx, in)
	default:
		return true
	}
}

func (s *Session) dispatch(ctx context.Context, in inboundEvent) bool {
	switch in.Type {
	case "direct-message":
		msg, delivered, err := s.deps.Router.SendDirect(ctx, s.user.ID, in.To, in.Ciphertext, in.KeyEnvelope)
		if err != nil {
			return s.reportError(err)
		}
		s.Send(marshalReceipt(s.deps.Router.Receipt(msg, delivered)))
	case "group-message":
		msg, err := s.deps.Router.SendGroup(ctx, s.user.ID, in.GroupID, in.Ciphertext, in.KeyEnvelopes)
		if err != nil {
			return s.reportError(err)
		}
		s.Send(marshalReceipt(s.deps.Router.Receipt(msg, true)))
	case "typing":
		if in.GroupID != "" {
			s.deps.Router.TypingGroup(s.user.ID, in.GroupID, in.IsTyping)
		} else {
			s.deps.Router.TypingDirect(s.user.ID, in.To, in.IsTyping)
		}
	case "join-group":
		isMember, err := s.deps.Groups.IsMember(ctx, in.GroupID, s.user.ID)
		if err != nil {
			return s.reportError(err)
		}
		if !isMember {
			s.sendError(errors.ErrNotGroupMember)
			return false
		}
		s.join(models.GroupConversationID(in.GroupID))
	case "leave-group":
		s.leave(models.GroupConversationID(in.GroupID))
	case "mark-read":
		// 占位：接受并确认，行为留空。
		if err := s.deps.Messages.MarkRead(ctx, s.user.ID, in.MessageID); err != nil {
			return s.reportError(err)
		}
		s.Send(mustMarshal(map[string]interface{}{"type": "read-ack", "message_id": in.MessageID}))
	case "authenticate":
		// 已认证的连接重复提交 token，忽略。
	default:
		s.sendError(errors.ErrInvalidPayload)
	}
	return false
}

// reportError 把错误回报给会话。校验/权限/冲突类错误可恢复，
// 存储故障关闭会话。
func (s *Session) reportError(err error) bool {
	s.sendError(err)
	return errors.CodeOf(err) == errors.CodeStorage
}

func (s *Session) sendError(err error) {
	code := errors.CodeOf(err)
	msg := err.Error()
	if code == errors.CodeStorage || code == errors.CodeUnknown || code == errors.CodeInternal {
		// 内部细节不出网。
		code = errors.CodeStorage
		msg = "temporary failure, retry later"
	}
	s.Send(mustMarshal(map[string]interface{}{
		"type":    delivery.EventError,
		"code":    code,
		"message": msg,
	}))
}

// Close 幂等地终止会话：注销 presence、退订全部频道、关闭连接。
// 无论什么路径触发的关闭都会走到 presence 注销。
func (s *Session) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.state == StateClosed {
		return
	}
	prev := s.state
	s.state = StateClosed
	if prev == StateAuthenticated && s.user != nil {
		s.deps.Registry.Unregister(s.user.ID, s)
		metrics.WsConnections.Dec()
	}
	for name, ch := range s.channels {
		delete(s.channels, name)
		ch.unsub <- s
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Session) readPump() {
	defer s.Close()
	s.conn.SetReadLimit(1 << 20) // 1MB
	_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inboundEvent
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			s.sendError(errors.ErrInvalidPayload)
			continue
		}
		if s.handleEvent(context.Background(), in) {
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(payload)
			_ = w.Close()
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func marshalReceipt(r delivery.ReceiptEvent) []byte {
	b, _ := json.Marshal(r)
	return b
}
