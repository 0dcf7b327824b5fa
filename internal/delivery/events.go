package delivery

import (
	"encoding/json"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/models"
)

// 会话事件通道上的事件类型。
const (
	EventPrivateMessage   = "private-message"
	EventGroupMessage     = "group-message"
	EventMessageDelivered = "message-delivered"
	EventTyping           = "typing"
	EventJoinGroup        = "join-group"
	EventLeaveGroup       = "leave-group"
	EventError            = "error"
)

// MessageEvent 把一条消息包进事件信封推给客户端。
type MessageEvent struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

// ReceiptEvent 是发送方收到的同步投递回执。
// Delivered 表示对方是否有在线句柄收到了实时推送；
// false 不代表丢失，消息仍然在会话历史里等待拉取。
type ReceiptEvent struct {
	Type        string    `json:"type"`
	MessageID   string    `json:"message_id"`
	Recipient   string    `json:"recipient,omitempty"`
	GroupID     string    `json:"group_id,omitempty"`
	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// TypingEvent 只走实时通道，从不持久化。
type TypingEvent struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
	GroupID  string `json:"group_id,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

func marshalEvent(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
