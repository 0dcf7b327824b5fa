package service

import (
	"context"
	"testing"

	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupService_Create_CreatorAlwaysMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	// 输入里没带创建者、还有重复项，集合语义都应吸收。
	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{bob.ID, bob.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, group.Members)
	assert.Equal(t, alice.ID, group.CreatedBy)
}

func TestGroupService_Create_SelfInclusionInInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{alice.ID, bob.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, group.Members)
}

func TestGroupService_AddMembers_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{bob.ID})
	require.NoError(t, err)
	before := len(group.Members)

	group, err = f.groups.AddMembers(ctx, group.ID, alice.ID, []string{bob.ID})
	require.NoError(t, err)
	assert.Len(t, group.Members, before)
}

func TestGroupService_AddMembers_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	carol := f.register(t, "carol")

	group, err := f.groups.Create(ctx, alice.ID, "friends", nil)
	require.NoError(t, err)

	_, err = f.groups.AddMembers(ctx, group.ID, carol.ID, []string{carol.ID})
	assert.ErrorIs(t, err, errors.ErrNotGroupMember)
}

func TestGroupService_RemoveMember_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{bob.ID, carol.ID})
	require.NoError(t, err)

	// 普通成员不能踢别人。
	err = f.groups.RemoveMember(ctx, group.ID, bob.ID, carol.ID)
	assert.ErrorIs(t, err, errors.ErrNotGroupCreator)

	// 成员可以自己退群。
	err = f.groups.RemoveMember(ctx, group.ID, bob.ID, bob.ID)
	require.NoError(t, err)

	// 创建者可以踢普通成员。
	err = f.groups.RemoveMember(ctx, group.ID, alice.ID, carol.ID)
	require.NoError(t, err)

	group, err = f.groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, group.Members)
}

func TestGroupService_CreatorIrremovable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{bob.ID})
	require.NoError(t, err)

	// 其他成员移除创建者被拒。
	err = f.groups.RemoveMember(ctx, group.ID, bob.ID, alice.ID)
	assert.ErrorIs(t, err, errors.ErrCreatorIrremovable)
	assert.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))

	// 创建者在位期间连自己也移除不了。
	err = f.groups.RemoveMember(ctx, group.ID, alice.ID, alice.ID)
	assert.ErrorIs(t, err, errors.ErrCreatorIrremovable)
}

func TestGroupService_Rename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	group, err := f.groups.Create(ctx, alice.ID, "friends", []string{bob.ID})
	require.NoError(t, err)

	_, err = f.groups.Rename(ctx, group.ID, bob.ID, "renamed")
	assert.ErrorIs(t, err, errors.ErrNotGroupCreator)

	renamed, err := f.groups.Rename(ctx, group.ID, alice.ID, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
}

func TestGroupService_UserGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	g1, err := f.groups.Create(ctx, alice.ID, "both", []string{bob.ID})
	require.NoError(t, err)
	_, err = f.groups.Create(ctx, alice.ID, "only-alice", nil)
	require.NoError(t, err)

	bobGroups, err := f.groups.UserGroups(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobGroups, 1)
	assert.Equal(t, g1.ID, bobGroups[0].ID)

	aliceGroups, err := f.groups.UserGroups(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, aliceGroups, 2)
}

func TestGroupService_Get_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.groups.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrGroupNotFound)
}
