package delivery

import (
	"context"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/metrics"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/presence"
	"github.com/Sterdam/murmur-sub001/internal/service"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Broadcaster 把载荷广播给订阅了某个频道的全部连接，ws.Hub 实现它。
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// Router 是无状态的投递编排：校验载荷、落库、再决定实时推送还是只留历史。
type Router struct {
	messages *service.MessageService
	groups   *service.GroupService
	registry *presence.Registry
	hub      Broadcaster
}

func NewRouter(messages *service.MessageService, groups *service.GroupService, registry *presence.Registry, hub Broadcaster) *Router {
	return &Router{messages: messages, groups: groups, registry: registry, hub: hub}
}

// SendDirect 投递一条单聊消息。返回的 delivered 表示收件人是否
// 有在线句柄收到了推送；不在线时消息只留在历史里等拉取。
func (r *Router) SendDirect(ctx context.Context, senderID, recipientID, ciphertext, keyEnvelope string) (*models.Message, bool, error) {
	if recipientID == "" || ciphertext == "" || keyEnvelope == "" {
		return nil, false, errors.ErrInvalidPayload
	}
	msg, err := r.messages.SaveDirect(ctx, senderID, recipientID, ciphertext, keyEnvelope)
	if err != nil {
		return nil, false, err
	}
	delivered := false
	payload := marshalEvent(MessageEvent{Type: EventPrivateMessage, Message: msg})
	for _, h := range r.registry.HandlesFor(recipientID) {
		if h.Send(payload) {
			delivered = true
		}
	}
	metrics.ObserveDirectMessage(delivered)
	log.Debug().Str("message_id", msg.ID).Bool("delivered", delivered).Msg("direct message routed")
	return msg, delivered, nil
}

// Receipt 构造 SendDirect 结果对应的投递回执。
func (r *Router) Receipt(msg *models.Message, delivered bool) ReceiptEvent {
	return ReceiptEvent{
		Type:        EventMessageDelivered,
		MessageID:   msg.ID,
		Recipient:   msg.RecipientID,
		GroupID:     msg.GroupID,
		Delivered:   delivered,
		DeliveredAt: time.Now().UTC(),
	}
}

// SendGroup 投递一条群聊消息：发送者必须在群里，信封按成员给齐。
// 广播是 fire-and-forget，不做按成员的投递记账；
// 离线成员重连后走历史拉取。
func (r *Router) SendGroup(ctx context.Context, senderID, groupID, ciphertext string, keyEnvelopes map[string]string) (*models.Message, error) {
	if groupID == "" || ciphertext == "" || len(keyEnvelopes) == 0 {
		return nil, errors.ErrInvalidPayload
	}
	isMember, err := r.groups.IsMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, errors.ErrNotGroupMember
	}
	msg, err := r.messages.SaveGroup(ctx, senderID, groupID, ciphertext, keyEnvelopes)
	if err != nil {
		return nil, err
	}
	r.hub.Broadcast(models.GroupConversationID(groupID), marshalEvent(MessageEvent{Type: EventGroupMessage, Message: msg}))
	metrics.ObserveGroupMessage()
	return msg, nil
}

// TypingDirect 把输入中状态推给对方的在线句柄，离线直接丢弃。
func (r *Router) TypingDirect(senderID, recipientID string, isTyping bool) {
	if recipientID == "" {
		return
	}
	payload := marshalEvent(TypingEvent{Type: EventTyping, SenderID: senderID, IsTyping: isTyping})
	for _, h := range r.registry.HandlesFor(recipientID) {
		h.Send(payload)
	}
}

// TypingGroup 在群频道上广播输入中状态。
func (r *Router) TypingGroup(senderID, groupID string, isTyping bool) {
	if groupID == "" {
		return
	}
	r.hub.Broadcast(models.GroupConversationID(groupID),
		marshalEvent(TypingEvent{Type: EventTyping, SenderID: senderID, GroupID: groupID, IsTyping: isTyping}))
}
