package models

import "time"

// User 的记录以 JSON 存在 user:{id}，username:{lower} 是指向 id 的二级索引。
// 对外输出不要直接序列化 User，handler 层只挑选需要的字段。
type User struct {
	ID             string                 `json:"id"`
	Username       string                 `json:"username"`
	CredentialHash string                 `json:"credential_hash,omitempty"`
	PublicKey      string                 `json:"public_key,omitempty"`
	DisplayName    string                 `json:"display_name,omitempty"`
	Bio            string                 `json:"bio,omitempty"`
	AllowedRegions []string               `json:"allowed_regions,omitempty"`
	Settings       map[string]interface{} `json:"settings,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ContactRequest 记录好友请求。展示字段是创建时刻的快照，之后改名不回填。
type ContactRequest struct {
	ID                   string        `json:"id"`
	SenderID             string        `json:"sender_id"`
	RecipientID          string        `json:"recipient_id"`
	SenderUsername       string        `json:"sender_username"`
	RecipientUsername    string        `json:"recipient_username"`
	SenderDisplayName    string        `json:"sender_display_name,omitempty"`
	RecipientDisplayName string        `json:"recipient_display_name,omitempty"`
	Status               RequestStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Group 的成员集合持久化在 groupMembers:{id}，加载时填进 Members。
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	Members   []string  `json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message 只承载密文和密钥信封，服务端从不解读内容。写入后不可变。
// 单聊用 RecipientID + KeyEnvelope，群聊用 GroupID + 按成员的 KeyEnvelopes。
type Message struct {
	ID             string            `json:"id"`
	SenderID       string            `json:"sender_id"`
	ConversationID string            `json:"conversation_id"`
	RecipientID    string            `json:"recipient_id,omitempty"`
	GroupID        string            `json:"group_id,omitempty"`
	Ciphertext     string            `json:"ciphertext"`
	KeyEnvelope    string            `json:"key_envelope,omitempty"`
	KeyEnvelopes   map[string]string `json:"key_envelopes,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	IsRead         bool              `json:"is_read"`
}
