package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/auth"
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/google/uuid"
)

// UserService 封装用户相关的业务逻辑，记录以 JSON 存在 store 里。
type UserService struct {
	store store.Store
	cfg   config.Config
}

func NewUserService(st store.Store, cfg config.Config) *UserService {
	return &UserService{store: st, cfg: cfg}
}

// Register 注册新用户。用户名唯一性靠 SetNX 占用二级索引保证：
// 先原子地占下 username:{lower} -> id，成功后再写主记录；
// 主记录写失败时回滚索引，不留只有索引没有记录的残留。
func (s *UserService) Register(ctx context.Context, username, password, publicKey string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "hash credential", err)
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:             uuid.NewString(),
		Username:       username,
		CredentialHash: hash,
		PublicKey:      publicKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ok, err := s.store.SetNX(ctx, store.UsernameKey(username), user.ID, 0)
	if err != nil {
		return nil, errors.Storage("claim username", err)
	}
	if !ok {
		return nil, errors.ErrUsernameTaken
	}
	if err := s.put(ctx, user); err != nil {
		_ = s.store.Del(ctx, store.UsernameKey(username))
		return nil, err
	}
	return user, nil
}

// Authenticate 校验用户名密码，失败统一返回 invalid credentials，
// 不区分“用户不存在”和“密码错误”。
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.CredentialHash, password) {
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	raw, err := s.store.Get(ctx, store.UserKey(id))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Storage("load user", err)
	}
	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "decode user", err)
	}
	return &user, nil
}

// GetByUsername 先查二级索引再查主记录，大小写不敏感。
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	id, err := s.store.Get(ctx, store.UsernameKey(strings.TrimSpace(username)))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Storage("resolve username", err)
	}
	return s.GetByID(ctx, id)
}

// UserPatch 是 Update 接受的字段白名单，名单之外的字段不可变更。
type UserPatch struct {
	PublicKey      *string
	DisplayName    *string
	Bio            *string
	AllowedRegions []string
	Settings       map[string]interface{}
}

// Update 按白名单合并用户资料。AllowedRegions 只接受两位字母的国家码，
// 不合法的条目静默丢弃；Settings 逐键合并而不是整体替换。
func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.PublicKey != nil {
		user.PublicKey = *patch.PublicKey
	}
	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.AllowedRegions != nil {
		user.AllowedRegions = filterRegions(patch.AllowedRegions)
	}
	if len(patch.Settings) > 0 {
		if user.Settings == nil {
			user.Settings = make(map[string]interface{}, len(patch.Settings))
		}
		for k, v := range patch.Settings {
			user.Settings[k] = v
		}
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) put(ctx context.Context, user *models.User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "encode user", err)
	}
	if err := s.store.Set(ctx, store.UserKey(user.ID), string(b)); err != nil {
		return errors.Storage("save user", err)
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) < 2 || len(username) > 64 {
		return errors.Validation("username must be 2-64 characters")
	}
	return nil
}

// filterRegions 保留恰好两位 ASCII 字母的国家码并统一大写，其余丢弃。
func filterRegions(regions []string) []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if len(r) != 2 {
			continue
		}
		valid := true
		for i := 0; i < 2; i++ {
			ch := r[i]
			if (ch < 'a' || ch > 'z') && (ch < 'A' || ch > 'Z') {
				valid = false
				break
			}
		}
		if valid {
			out = append(out, strings.ToUpper(r))
		}
	}
	return out
}
