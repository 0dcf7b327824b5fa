package service

import (
	"context"
	"testing"

	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "alice")
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "pk-alice", user.PublicKey)

	loaded, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, loaded.Username)
}

func TestUserService_Register_UsernameTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "alice")
	_, err := f.users.Register(ctx, "alice", "otherpass", "")
	assert.ErrorIs(t, err, errors.ErrUsernameTaken)

	// 大小写不同仍然算重名。
	_, err = f.users.Register(ctx, "ALICE", "otherpass", "")
	assert.ErrorIs(t, err, errors.ErrUsernameTaken)
}

func TestUserService_GetByUsername_CaseInsensitive(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "Alice")

	loaded, err := f.users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loaded.ID)
}

func TestUserService_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	user, err := f.users.Authenticate(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.users.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)

	// 用户不存在和密码错误不可区分。
	_, err = f.users.Authenticate(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestUserService_Update_FiltersRegions(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice")

	updated, err := f.users.Update(context.Background(), user.ID, UserPatch{
		AllowedRegions: []string{"fr", "US", "FRA", "1x", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"FR", "US"}, updated.AllowedRegions)
}

func TestUserService_Update_MergesSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice")

	_, err := f.users.Update(ctx, user.ID, UserPatch{
		Settings: map[string]interface{}{"theme": "dark", "notify": true},
	})
	require.NoError(t, err)

	updated, err := f.users.Update(ctx, user.ID, UserPatch{
		Settings: map[string]interface{}{"notify": false},
	})
	require.NoError(t, err)

	// 逐键合并：没动过的键保留。
	assert.Equal(t, "dark", updated.Settings["theme"])
	assert.Equal(t, false, updated.Settings["notify"])
}

func TestUserService_Update_IgnoresUnlistedFields(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice")

	name := "Alice A."
	updated, err := f.users.Update(context.Background(), user.ID, UserPatch{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", updated.DisplayName)
	// 用户名和凭据不在白名单里，不可能被 patch 改掉。
	assert.Equal(t, user.Username, updated.Username)
	assert.Equal(t, user.CredentialHash, updated.CredentialHash)
}
