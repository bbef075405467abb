package service

import (
	"context"
	"slices"
	"sort"
	"strings"

	"go-news-cms/internal/model"
)

type RoleStore interface {
	RolesOf(ctx context.Context, userID string) ([]model.Role, error)
	PermissionsOfRoles(ctx context.Context, roleIDs []int64) ([]model.Permission, error)
	FindRoleByName(ctx context.Context, name string) (model.Role, error)
	AssignRole(ctx context.Context, userID string, roleID int64, assignedBy string) error
	RemoveRole(ctx context.Context, userID string, roleID int64) (bool, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
}

type PermissionResolver struct {
	roles RoleStore
}

func NewPermissionResolver(roles RoleStore) *PermissionResolver {
	return &PermissionResolver{roles: roles}
}

func (r *PermissionResolver) RolesOf(ctx context.Context, userID string) ([]model.Role, error) {
	return r.roles.RolesOf(ctx, userID)
}

// PermissionsOf is the de-duplicated union of the permissions of every role
// the user holds, sorted by name.
func (r *PermissionResolver) PermissionsOf(ctx context.Context, userID string) ([]model.Permission, error) {
	roles, err := r.roles.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.permissionsOfRoles(ctx, roles)
}

func (r *PermissionResolver) permissionsOfRoles(ctx context.Context, roles []model.Role) ([]model.Permission, error) {
	if len(roles) == 0 {
		return []model.Permission{}, nil
	}

	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}

	linked, err := r.roles.PermissionsOfRoles(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(linked))
	perms := make([]model.Permission, 0, len(linked))
	for _, p := range linked {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		perms = append(perms, p)
	}

	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (r *PermissionResolver) HasPermission(ctx context.Context, userID string, permission string) (bool, error) {
	perms, err := r.PermissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	permission = strings.TrimSpace(permission)
	return slices.ContainsFunc(perms, func(p model.Permission) bool { return p.Name == permission }), nil
}

// Resolve loads role and permission names for u in one pass.
func (r *PermissionResolver) Resolve(ctx context.Context, u model.User) (model.AuthUser, error) {
	roles, err := r.roles.RolesOf(ctx, u.ID)
	if err != nil {
		return model.AuthUser{}, err
	}
	perms, err := r.permissionsOfRoles(ctx, roles)
	if err != nil {
		return model.AuthUser{}, err
	}

	out := u.Public()
	out.Roles = make([]string, 0, len(roles))
	for _, role := range roles {
		out.Roles = append(out.Roles, role.Name)
	}
	out.Permissions = make([]string, 0, len(perms))
	for _, p := range perms {
		out.Permissions = append(out.Permissions, p.Name)
	}
	return out, nil
}

func (r *PermissionResolver) AssignRole(ctx context.Context, userID string, roleName string, grantedBy string) (model.Role, error) {
	role, err := r.roles.FindRoleByName(ctx, roleName)
	if err != nil {
		return model.Role{}, err
	}
	if err := r.roles.AssignRole(ctx, userID, role.ID, grantedBy); err != nil {
		return model.Role{}, err
	}
	return role, nil
}

// RevokeRole reports whether the user actually held the role.
func (r *PermissionResolver) RevokeRole(ctx context.Context, userID string, roleName string) (bool, error) {
	role, err := r.roles.FindRoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}
	return r.roles.RemoveRole(ctx, userID, role.ID)
}

func (r *PermissionResolver) ListRoles(ctx context.Context) ([]model.Role, error) {
	return r.roles.ListRoles(ctx)
}
