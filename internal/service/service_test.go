package service

import (
	"context"
	"testing"

	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Env:                   "test",
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
		MessageTTLDays:        7,
		HistoryTTLDays:        30,
		ContactRequestTTLDays: 30,
	}
}

type fixture struct {
	store    *store.MemoryStore
	users    *UserService
	contacts *ContactService
	groups   *GroupService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := testConfig()
	users := NewUserService(st, cfg)
	return &fixture{
		store:    st,
		users:    users,
		contacts: NewContactService(st, users, cfg),
		groups:   NewGroupService(st),
		messages: NewMessageService(st, cfg),
	}
}

func (f *fixture) register(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), username, "password123", "pk-"+username)
	require.NoError(t, err)
	return user
}
