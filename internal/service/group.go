package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/google/uuid"
)

// GroupService 封装群组与成员集合的业务逻辑。
type GroupService struct {
	store store.Store
}

func NewGroupService(st store.Store) *GroupService {
	return &GroupService{store: st}
}

// Create 创建群组。成员集合 = initialMembers ∪ {creator}，
// 创建者无条件入群，输入里的重复项由集合语义吸收。
func (s *GroupService) Create(ctx context.Context, creatorID, name string, initialMembers []string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 128 {
		return nil, errors.Validation("group name must be 1-128 characters")
	}
	now := time.Now().UTC()
	group := &models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.putGroup(ctx, group); err != nil {
		return nil, err
	}
	members := append([]string{creatorID}, initialMembers...)
	if err := s.store.SAdd(ctx, store.GroupMembersKey(group.ID), members...); err != nil {
		return nil, errors.Storage("write group members", err)
	}
	return s.Get(ctx, group.ID)
}

// Get 加载群组并填充成员集合。
func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	raw, err := s.store.Get(ctx, store.GroupKey(id))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrGroupNotFound
		}
		return nil, errors.Storage("load group", err)
	}
	var group models.Group
	if err := json.Unmarshal([]byte(raw), &group); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "decode group", err)
	}
	members, err := s.store.SMembers(ctx, store.GroupMembersKey(id))
	if err != nil {
		return nil, errors.Storage("load group members", err)
	}
	group.Members = members
	return &group, nil
}

// Rename 只有创建者可以改名。
func (s *GroupService) Rename(ctx context.Context, groupID, requesterID, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 128 {
		return nil, errors.Validation("group name must be 1-128 characters")
	}
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != requesterID {
		return nil, errors.ErrNotGroupCreator
	}
	group.Name = name
	group.UpdatedAt = time.Now().UTC()
	if err := s.putGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// AddMembers 任何现有成员都可以拉人，SAdd 天然幂等。
func (s *GroupService) AddMembers(ctx context.Context, groupID, requesterID string, memberIDs []string) (*models.Group, error) {
	if len(memberIDs) == 0 {
		return nil, errors.Validation("members list is empty")
	}
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.isMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, errors.ErrNotGroupMember
	}
	if err := s.store.SAdd(ctx, store.GroupMembersKey(groupID), memberIDs...); err != nil {
		return nil, errors.Storage("add group members", err)
	}
	group.UpdatedAt = time.Now().UTC()
	if err := s.putGroup(ctx, group); err != nil {
		return nil, err
	}
	return s.Get(ctx, groupID)
}

// RemoveMember 的权限规则：成员可以自己退群；踢人只能是创建者；
// 创建者在位期间不可被移除，包括他自己——转让或解散不在本层范围。
func (s *GroupService) RemoveMember(ctx context.Context, groupID, requesterID, targetID string) error {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if targetID == group.CreatedBy {
		return errors.ErrCreatorIrremovable
	}
	if requesterID != targetID && requesterID != group.CreatedBy {
		return errors.ErrNotGroupCreator
	}
	if err := s.store.SRem(ctx, store.GroupMembersKey(groupID), targetID); err != nil {
		return errors.Storage("remove group member", err)
	}
	group.UpdatedAt = time.Now().UTC()
	return s.putGroup(ctx, group)
}

// UserGroups 扫描全部成员集合找出包含该用户的群。O(群总数)，
// 没有按用户的二级索引，群规模预期很小时够用。
func (s *GroupService) UserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	keys, err := s.store.Keys(ctx, store.GroupMembersPrefix())
	if err != nil {
		return nil, errors.Storage("scan group members", err)
	}
	var out []models.Group
	for _, key := range keys {
		groupID := store.GroupIDFromMembersKey(key)
		if groupID == "" {
			continue
		}
		ok, err := s.store.SIsMember(ctx, key, userID)
		if err != nil {
			return nil, errors.Storage("check group membership", err)
		}
		if !ok {
			continue
		}
		group, err := s.Get(ctx, groupID)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, *group)
	}
	return out, nil
}

func (s *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	return s.isMember(ctx, groupID, userID)
}

func (s *GroupService) isMember(ctx context.Context, groupID, userID string) (bool, error) {
	ok, err := s.store.SIsMember(ctx, store.GroupMembersKey(groupID), userID)
	if err != nil {
		return false, errors.Storage("check group membership", err)
	}
	return ok, nil
}

func (s *GroupService) putGroup(ctx context.Context, group *models.Group) error {
	stored := *group
	stored.Members = nil // 成员只存在集合里，主记录不重复存一份
	b, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encode group", err)
	}
	if err := s.store.Set(ctx, store.GroupKey(group.ID), string(b)); err != nil {
		return errors.Storage("save group", err)
	}
	return nil
}
