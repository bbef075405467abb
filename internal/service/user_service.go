package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
	"go-news-cms/internal/util"
)

const (
	defaultUserListLimit = 100
	maxUserListLimit     = 500
	resolveConcurrency   = 4
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (model.User, error)
	SetSuspended(ctx context.Context, userID string, suspended bool) error
	Activate(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter model.UserFilter) ([]model.User, error)
}

// UserService covers account administration: profiles, suspension and
// role grants.
type UserService struct {
	users    UserStore
	sessions SessionStore
	roles    *PermissionResolver
	tx       Transactor
	events   event.Publisher
}

func NewUserService(users UserStore, sessions SessionStore, roles *PermissionResolver, tx Transactor, events event.Publisher) *UserService {
	if events == nil {
		events = event.Discard{}
	}
	return &UserService{users: users, sessions: sessions, roles: roles, tx: tx, events: events}
}

func (s *UserService) GetByID(ctx context.Context, id string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.AuthUser{}, err
	}
	return s.roles.Resolve(ctx, user)
}

func (s *UserService) List(ctx context.Context, filter model.UserFilter) ([]model.AuthUser, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultUserListLimit
	}
	if filter.Limit > maxUserListLimit {
		filter.Limit = maxUserListLimit
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]model.AuthUser, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			resolved, err := s.roles.Resolve(gctx, u)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (model.AuthUser, error) {
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if err := util.ValidateEmail(email); err != nil {
			return model.AuthUser{}, err
		}
		update.Email = &email
	}
	update.FullName = cleaned(update.FullName, maxFullNameRunes)
	update.Bio = cleaned(update.Bio, maxBioRunes)
	update.AvatarURL = cleaned(update.AvatarURL, maxAvatarURLRunes)

	user, err := s.users.UpdateProfile(ctx, id, update)
	if err != nil {
		return model.AuthUser{}, err
	}

	publish(ctx, s.events, event.TypeProfileUpdated, event.OutcomeSuccess, id, nil)
	return s.roles.Resolve(ctx, user)
}

// Suspend blocks the account and ends its sessions in one transaction.
func (s *UserService) Suspend(ctx context.Context, id string) error {
	if err := s.rejectSelf(ctx, id, "cannot suspend your own account"); err != nil {
		return err
	}
	if err := s.protectSuperAdmin(ctx, id); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.SetSuspended(ctx, id, true); err != nil {
			return err
		}
		return s.sessions.RevokeAll(ctx, id)
	})
	if err != nil {
		return err
	}

	publish(ctx, s.events, event.TypeUserSuspended, event.OutcomeSuccess, id, nil)
	return nil
}

func (s *UserService) Activate(ctx context.Context, id string) error {
	if err := s.users.Activate(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.events, event.TypeUserActivated, event.OutcomeSuccess, id, nil)
	return nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.rejectSelf(ctx, id, "cannot delete your own account"); err != nil {
		return err
	}
	if err := s.protectSuperAdmin(ctx, id); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.events, event.TypeUserDeleted, event.OutcomeSuccess, id, nil)
	return nil
}

func (s *UserService) AssignRole(ctx context.Context, userID string, roleName string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}

	if err := s.requireSuperAdminFor(ctx, roleName); err != nil {
		return model.AuthUser{}, err
	}

	role, err := s.roles.AssignRole(ctx, userID, roleName, ActorFromContext(ctx).UserID)
	if err != nil {
		return model.AuthUser{}, err
	}

	publish(ctx, s.events, event.TypeRoleAssigned, event.OutcomeSuccess, userID, map[string]any{"role": role.Name})
	return s.roles.Resolve(ctx, user)
}

func (s *UserService) RevokeRole(ctx context.Context, userID string, roleName string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}

	if err := s.requireSuperAdminFor(ctx, roleName); err != nil {
		return model.AuthUser{}, err
	}

	removed, err := s.roles.RevokeRole(ctx, userID, roleName)
	if err != nil {
		return model.AuthUser{}, err
	}
	if removed {
		publish(ctx, s.events, event.TypeRoleRevoked, event.OutcomeSuccess, userID, map[string]any{"role": roleName})
	}
	return s.roles.Resolve(ctx, user)
}

func (s *UserService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.roles.ListRoles(ctx)
}

func (s *UserService) rejectSelf(ctx context.Context, id string, message string) error {
	if actor := ActorFromContext(ctx); actor.UserID != "" && actor.UserID == id {
		return model.ErrForbidden.WithMessage(message)
	}
	return nil
}

// protectSuperAdmin lets only a super_admin act on another super_admin.
// Calls without an actor are system calls and pass.
func (s *UserService) protectSuperAdmin(ctx context.Context, targetID string) error {
	actorID := ActorFromContext(ctx).UserID
	if actorID == "" {
		return nil
	}

	target, err := s.isSuperAdmin(ctx, targetID)
	if err != nil || !target {
		return err
	}
	return s.requireSuperAdminActor(ctx, actorID, "only a super_admin can manage a super_admin account")
}

// requireSuperAdminFor gates grants and revocations of the super_admin role.
func (s *UserService) requireSuperAdminFor(ctx context.Context, roleName string) error {
	actorID := ActorFromContext(ctx).UserID
	if actorID == "" || strings.TrimSpace(roleName) != superAdminRole {
		return nil
	}
	return s.requireSuperAdminActor(ctx, actorID, "only a super_admin can grant or revoke super_admin")
}

func (s *UserService) requireSuperAdminActor(ctx context.Context, actorID string, message string) error {
	ok, err := s.isSuperAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrForbidden.WithMessage(message)
	}
	return nil
}

func (s *UserService) isSuperAdmin(ctx context.Context, userID string) (bool, error) {
	roles, err := s.roles.RolesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Name == superAdminRole {
			return true, nil
		}
	}
	return false, nil
}

func cleaned(value *string, maxRunes int) *string {
	if value == nil {
		return nil
	}
	out := util.CleanText(*value, maxRunes)
	return &out
}
