package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go-news-cms/internal/model"
)

func TestPermissionsOfIsDedupedUnionSortedByName(t *testing.T) {
	t.Parallel()

	roles := newMemRoles()
	resolver := NewPermissionResolver(roles)
	ctx := context.Background()

	_, err := resolver.AssignRole(ctx, "u1", "author", "")
	require.NoError(t, err)
	_, err = resolver.AssignRole(ctx, "u1", "editor", "")
	require.NoError(t, err)

	perms, err := resolver.PermissionsOf(ctx, "u1")
	require.NoError(t, err)

	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{
		"article.create",
		"article.delete",
		"article.edit",
		"article.publish",
		"category.manage",
	}, names)
}

func TestHasPermission(t *testing.T) {
	t.Parallel()

	roles := newMemRoles()
	resolver := NewPermissionResolver(roles)
	ctx := context.Background()

	_, err := resolver.AssignRole(ctx, "author-1", "author", "")
	require.NoError(t, err)
	_, err = resolver.AssignRole(ctx, "reader-1", "registered_user", "")
	require.NoError(t, err)

	ok, err := resolver.HasPermission(ctx, "author-1", "article.create")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasPermission(ctx, "author-1", "article.publish")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasPermission(ctx, "reader-1", "article.create")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasPermission(ctx, "nobody", "article.create")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAssignAndRevokeRoles(t *testing.T) {
	t.Parallel()

	roles := newMemRoles()
	resolver := NewPermissionResolver(roles)
	ctx := context.Background()

	_, err := resolver.AssignRole(ctx, "u1", "no-such-role", "")
	require.ErrorIs(t, err, model.ErrRoleNotFound)

	role, err := resolver.AssignRole(ctx, "u1", "editor", "admin-1")
	require.NoError(t, err)
	require.Equal(t, "editor", role.Name)

	// Assigning twice is a no-op.
	_, err = resolver.AssignRole(ctx, "u1", "editor", "admin-2")
	require.NoError(t, err)
	require.Equal(t, "admin-1", roles.userRoles["u1"][role.ID])

	removed, err := resolver.RevokeRole(ctx, "u1", "editor")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = resolver.RevokeRole(ctx, "u1", "editor")
	require.NoError(t, err)
	require.False(t, removed)

	held, err := resolver.RolesOf(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, held)
}

func TestResolveAttachesRolesAndPermissions(t *testing.T) {
	t.Parallel()

	roles := newMemRoles()
	resolver := NewPermissionResolver(roles)
	ctx := context.Background()

	_, err := resolver.AssignRole(ctx, "u1", "author", "")
	require.NoError(t, err)

	out, err := resolver.Resolve(ctx, model.User{ID: "u1", Username: "alice", PasswordHash: "secret"})
	require.NoError(t, err)
	require.Equal(t, []string{"author"}, out.Roles)
	require.Equal(t, []string{"article.create", "article.edit"}, out.Permissions)
}
