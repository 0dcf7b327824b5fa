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

// ContactService 管理好友请求的状态机和双向的联系人集合。
type ContactService struct {
	store store.Store
	users *UserService
	cfg   config.Config
}

func NewContactService(st store.Store, users *UserService, cfg config.Config) *ContactService {
	return &ContactService{store: st, users: users, cfg: cfg}
}

// SendRequest 创建一条 pending 好友请求。检查顺序固定：
// 对方存在 -> 不是自己 -> 还不是联系人 -> 没有未处理的同向请求，
// 第一个不通过的检查决定返回的错误。
// 重复检查和创建之间没有跨键事务，极端并发下可能出现两条 pending，
// 接受任意一条都会收敛到同一个联系人边，属于可接受的窗口。
func (s *ContactService) SendRequest(ctx context.Context, senderID, recipientUsername string) (*models.ContactRequest, error) {
	recipient, err := s.users.GetByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, errors.ErrSelfRequest
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	isContact, err := s.store.SIsMember(ctx, store.ContactsKey(senderID), recipient.ID)
	if err != nil {
		return nil, errors.Storage("check contact edge", err)
	}
	if isContact {
		return nil, errors.ErrAlreadyContact
	}
	pending, err := s.pendingOutgoingTo(ctx, senderID, recipient.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, errors.ErrRequestPending
	}

	now := time.Now().UTC()
	req := &models.ContactRequest{
		ID:                   uuid.NewString(),
		SenderID:             sender.ID,
		RecipientID:          recipient.ID,
		SenderUsername:       sender.Username,
		RecipientUsername:    recipient.Username,
		SenderDisplayName:    sender.DisplayName,
		RecipientDisplayName: recipient.DisplayName,
		Status:               models.RequestPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.putRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := s.store.SAdd(ctx, store.RequestsOutKey(sender.ID), req.ID); err != nil {
		return nil, errors.Storage("index outgoing request", err)
	}
	if err := s.store.SAdd(ctx, store.RequestsInKey(recipient.ID), req.ID); err != nil {
		return nil, errors.Storage("index incoming request", err)
	}
	return req, nil
}

// Respond 由收件人接受或拒绝一条 pending 请求。
// 接受时先写两个方向的联系人边，都成功才把状态翻成 accepted；
// 写边中途失败请求保持 pending，外界观察不到半接受状态。
func (s *ContactService) Respond(ctx context.Context, requestID, responderID string, accept bool) (*models.ContactRequest, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RecipientID != responderID {
		return nil, errors.ErrNotRecipient
	}
	if req.Status != models.RequestPending {
		return nil, errors.ErrAlreadyProcessed
	}
	if accept {
		if err := s.store.SAdd(ctx, store.ContactsKey(req.SenderID), req.RecipientID); err != nil {
			return nil, errors.Storage("write contact edge", err)
		}
		if err := s.store.SAdd(ctx, store.ContactsKey(req.RecipientID), req.SenderID); err != nil {
			return nil, errors.Storage("write contact edge", err)
		}
		req.Status = models.RequestAccepted
	} else {
		req.Status = models.RequestRejected
	}
	req.UpdatedAt = time.Now().UTC()
	if err := s.putRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListIncoming 返回收件箱里仍然 pending 的请求。
func (s *ContactService) ListIncoming(ctx context.Context, userID string) ([]models.ContactRequest, error) {
	return s.listRequests(ctx, store.RequestsInKey(userID))
}

// ListOutgoing 返回发出且仍然 pending 的请求。
func (s *ContactService) ListOutgoing(ctx context.Context, userID string) ([]models.ContactRequest, error) {
	return s.listRequests(ctx, store.RequestsOutKey(userID))
}

// Contacts 返回联系人 id 列表。
func (s *ContactService) Contacts(ctx context.Context, userID string) ([]string, error) {
	members, err := s.store.SMembers(ctx, store.ContactsKey(userID))
	if err != nil {
		return nil, errors.Storage("list contacts", err)
	}
	return members, nil
}

func (s *ContactService) IsContact(ctx context.Context, userID, otherID string) (bool, error) {
	ok, err := s.store.SIsMember(ctx, store.ContactsKey(userID), otherID)
	if err != nil {
		return false, errors.Storage("check contact edge", err)
	}
	return ok, nil
}

func (s *ContactService) GetRequest(ctx context.Context, id string) (*models.ContactRequest, error) {
	raw, err := s.store.Get(ctx, store.RequestKey(id))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrRequestNotFound
		}
		return nil, errors.Storage("load request", err)
	}
	var req models.ContactRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "decode request", err)
	}
	return &req, nil
}

// pendingOutgoingTo 扫描发件集合找指向 recipientID 的 pending 请求。
// 请求体过期后索引里可能留下悬空 id，读到时顺手清理。
func (s *ContactService) pendingOutgoingTo(ctx context.Context, senderID, recipientID string) (bool, error) {
	ids, err := s.store.SMembers(ctx, store.RequestsOutKey(senderID))
	if err != nil {
		return false, errors.Storage("list outgoing requests", err)
	}
	for _, id := range ids {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				_ = s.store.SRem(ctx, store.RequestsOutKey(senderID), id)
				continue
			}
			return false, err
		}
		if req.Status == models.RequestPending && req.RecipientID == recipientID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ContactService) listRequests(ctx context.Context, indexKey string) ([]models.ContactRequest, error) {
	ids, err := s.store.SMembers(ctx, indexKey)
	if err != nil {
		return nil, errors.Storage("list requests", err)
	}
	out := make([]models.ContactRequest, 0, len(ids))
	for _, id := range ids {
		req, err := s.GetRequest(ctx, id)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				_ = s.store.SRem(ctx, indexKey, id)
				continue
			}
			return nil, err
		}
		if req.Status == models.RequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (s *ContactService) putRequest(ctx context.Context, req *models.ContactRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encode request", err)
	}
	ttl := time.Duration(s.cfg.ContactRequestTTLDays) * 24 * time.Hour
	if err := s.store.SetEx(ctx, store.RequestKey(req.ID), string(b), ttl); err != nil {
		return errors.Storage("save request", err)
	}
	return nil
}
