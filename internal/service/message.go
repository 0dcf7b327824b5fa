package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/google/uuid"
)

// MessageService 负责消息的持久化和会话历史。消息只追加不修改；
// 消息体和会话索引各有 TTL，索引必须活得不比消息体短。
type MessageService struct {
	store store.Store
	cfg   config.Config
}

func NewMessageService(st store.Store, cfg config.Config) *MessageService {
	return &MessageService{store: st, cfg: cfg}
}

// SaveDirect 持久化一条单聊消息并把 id 追加到会话历史头部。
// 会话 id 在这里由参与双方重新推导，不接受外部传入。
func (s *MessageService) SaveDirect(ctx context.Context, senderID, recipientID, ciphertext, keyEnvelope string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		RecipientID:    recipientID,
		ConversationID: models.DirectConversationID(senderID, recipientID),
		Ciphertext:     ciphertext,
		KeyEnvelope:    keyEnvelope,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SaveGroup 持久化一条群聊消息，密钥信封按成员分发。
func (s *MessageService) SaveGroup(ctx context.Context, senderID, groupID, ciphertext string, keyEnvelopes map[string]string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		GroupID:        groupID,
		ConversationID: models.GroupConversationID(groupID),
		Ciphertext:     ciphertext,
		KeyEnvelopes:   keyEnvelopes,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History 按最新在前返回一段会话历史，offset/limit 分页。
// 消息体先于索引过期时列表里会有悬空 id，直接跳过。
func (s *MessageService) History(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	ids, err := s.store.LRange(ctx, store.HistoryKey(conversationID), int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, errors.Storage("read history", err)
	}
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.Get(ctx, id)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (s *MessageService) Get(ctx context.Context, id string) (*models.Message, error) {
	raw, err := s.store.Get(ctx, store.MessageKey(id))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrMessageNotFound
		}
		return nil, errors.Storage("load message", err)
	}
	var msg models.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "decode message", err)
	}
	return &msg, nil
}

// MarkRead 目前是占位实现：事件被接受并确认，但不改任何状态。
func (s *MessageService) MarkRead(_ context.Context, _ string, _ string) error {
	return nil
}

func (s *MessageService) persist(ctx context.Context, msg *models.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encode message", err)
	}
	bodyTTL := time.Duration(s.cfg.MessageTTLDays) * 24 * time.Hour
	historyTTL := time.Duration(s.cfg.HistoryTTLDays) * 24 * time.Hour
	if err := s.store.SetEx(ctx, store.MessageKey(msg.ID), string(b), bodyTTL); err != nil {
		return errors.Storage("save message", err)
	}
	if err := s.store.LPush(ctx, store.HistoryKey(msg.ConversationID), msg.ID); err != nil {
		return errors.Storage("index message", err)
	}
	if err := s.store.Expire(ctx, store.HistoryKey(msg.ConversationID), historyTTL); err != nil {
		return errors.Storage("refresh history ttl", err)
	}
	return nil
}
