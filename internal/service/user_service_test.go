package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
)

func newUserService(h *harness) *UserService {
	return NewUserService(h.users, h.sessions, h.resolver, passthroughTx{}, h.bus)
}

func strPtr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	alice := h.register(t, "alice", alicePassword)
	h.register(t, "bob", alicePassword)
	ctx := context.Background()

	_, err := svc.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{})
	require.ErrorIs(t, err, model.ErrNoFieldsToUpdate)

	_, err = svc.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{Email: strPtr("nope")})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{Email: strPtr("bob@news.test")})
	require.ErrorIs(t, err, model.ErrEmailExists)

	updated, err := svc.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{
		FullName: strPtr("Alice Editor"),
		Bio:      strPtr("Covers city hall."),
	})
	require.NoError(t, err)
	require.Equal(t, "Alice Editor", updated.FullName)
	require.Equal(t, "Covers city hall.", updated.Bio)
	require.Equal(t, "alice@news.test", updated.Email)
	require.Equal(t, []string{"registered_user"}, updated.Roles)

	_, err = svc.UpdateProfile(ctx, "missing", model.ProfileUpdate{Bio: strPtr("x")})
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestSuspendEndsSessionsAndBlocksLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	alice := h.register(t, "alice", alicePassword)

	result, err := h.login("alice", alicePassword)
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(context.Background(), alice.ID))
	require.Zero(t, h.sessions.countFor(alice.ID))

	_, err = h.auth.VerifyToken(context.Background(), result.AccessToken)
	require.ErrorIs(t, err, model.ErrInvalidOrExpiredToken)

	_, err = h.login("alice", alicePassword)
	require.ErrorIs(t, err, model.ErrAccountSuspended)

	require.NoError(t, svc.Activate(context.Background(), alice.ID))
	_, err = h.login("alice", alicePassword)
	require.NoError(t, err)

	require.Contains(t, h.bus.types(), event.TypeUserSuspended)
	require.Contains(t, h.bus.types(), event.TypeUserActivated)
}

func TestAdminCannotSuspendOrDeleteThemselves(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	admin := h.register(t, "admin", alicePassword)
	ctx := WithActor(context.Background(), model.AuditActor{UserID: admin.ID})

	require.ErrorIs(t, svc.Suspend(ctx, admin.ID), model.ErrForbidden)
	require.ErrorIs(t, svc.Delete(ctx, admin.ID), model.ErrForbidden)

	require.ErrorIs(t, svc.Delete(ctx, "missing"), model.ErrUserNotFound)
}

func TestAssignAndRevokeRoleThroughUserService(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	admin := h.register(t, "admin", alicePassword)
	alice := h.register(t, "alice", alicePassword)
	ctx := WithActor(context.Background(), model.AuditActor{UserID: admin.ID, IP: "198.51.100.1"})

	updated, err := svc.AssignRole(ctx, alice.ID, "editor")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"editor", "registered_user"}, updated.Roles)
	require.Contains(t, updated.Permissions, "article.publish")
	require.Equal(t, admin.ID, h.roles.userRoles[alice.ID][3])

	e, ok := h.bus.last(event.TypeRoleAssigned)
	require.True(t, ok)
	require.Equal(t, admin.ID, e.ActorID)
	require.Equal(t, alice.ID, e.SubjectID)
	require.Equal(t, "editor", e.Payload["role"])
	require.Equal(t, "198.51.100.1", e.IP)

	updated, err = svc.RevokeRole(ctx, alice.ID, "editor")
	require.NoError(t, err)
	require.Equal(t, []string{"registered_user"}, updated.Roles)

	_, err = svc.AssignRole(ctx, alice.ID, "publisher")
	require.ErrorIs(t, err, model.ErrRoleNotFound)

	_, err = svc.AssignRole(ctx, "missing", "editor")
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestListUsersResolvesRoles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	h.register(t, "alice", alicePassword)
	bob := h.register(t, "bob", alicePassword)
	h.register(t, "carol", alicePassword)
	require.NoError(t, h.users.SetSuspended(context.Background(), bob.ID, true))

	all, err := svc.List(context.Background(), model.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, u := range all {
		require.Equal(t, []string{"registered_user"}, u.Roles)
	}

	suspended := true
	onlySuspended, err := svc.List(context.Background(), model.UserFilter{IsSuspended: &suspended})
	require.NoError(t, err)
	require.Len(t, onlySuspended, 1)
	require.Equal(t, "bob", onlySuspended[0].Username)

	limited, err := svc.List(context.Background(), model.UserFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)

	roles, err := svc.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 5)
}

func TestUpdateProfileCleansText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	alice := h.register(t, "alice", alicePassword)

	updated, err := svc.UpdateProfile(context.Background(), alice.ID, model.ProfileUpdate{
		FullName: strPtr("  Alice\u200B Editor\x07 "),
		Email:    strPtr(" alice.editor@news.test "),
	})
	require.NoError(t, err)
	require.Equal(t, "Alice Editor", updated.FullName)
	require.Equal(t, "alice.editor@news.test", updated.Email)
}

func TestOnlySuperAdminsManageSuperAdmins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	svc := newUserService(h)
	ctx := context.Background()

	chief := h.register(t, "chief", alicePassword)
	_, err := h.resolver.AssignRole(ctx, chief.ID, "super_admin", "")
	require.NoError(t, err)
	admin := h.register(t, "admin", alicePassword)
	_, err = h.resolver.AssignRole(ctx, admin.ID, "admin", chief.ID)
	require.NoError(t, err)
	alice := h.register(t, "alice", alicePassword)

	asAdmin := WithActor(ctx, model.AuditActor{UserID: admin.ID})
	_, err = svc.AssignRole(asAdmin, admin.ID, "super_admin")
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = svc.AssignRole(asAdmin, alice.ID, "super_admin")
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = svc.RevokeRole(asAdmin, chief.ID, "super_admin")
	require.ErrorIs(t, err, model.ErrForbidden)
	require.ErrorIs(t, svc.Suspend(asAdmin, chief.ID), model.ErrForbidden)
	require.ErrorIs(t, svc.Delete(asAdmin, chief.ID), model.ErrForbidden)

	// Ordinary accounts and roles stay manageable by admins.
	updated, err := svc.AssignRole(asAdmin, alice.ID, "editor")
	require.NoError(t, err)
	require.Contains(t, updated.Roles, "editor")
	require.NoError(t, svc.Suspend(asAdmin, alice.ID))

	asChief := WithActor(ctx, model.AuditActor{UserID: chief.ID})
	updated, err = svc.AssignRole(asChief, admin.ID, "super_admin")
	require.NoError(t, err)
	require.Contains(t, updated.Roles, "super_admin")
	require.NoError(t, svc.Suspend(asChief, admin.ID))
}
