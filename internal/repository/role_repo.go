package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-news-cms/internal/database"
	"go-news-cms/internal/model"
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) db(ctx context.Context) database.Querier {
	return database.Conn(ctx, r.pool)
}

func (r *RoleRepository) RolesOf(ctx context.Context, userID string) ([]model.Role, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT r.id, r.name, r.description
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	return collectRoles(rows)
}

// PermissionsOfRoles returns every (role, permission) link for the given
// roles; the same permission appears once per role that grants it.
func (r *RoleRepository) PermissionsOfRoles(ctx context.Context, roleIDs []int64) ([]model.Permission, error) {
	if len(roleIDs) == 0 {
		return []model.Permission{}, nil
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT p.id, p.name, p.description
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]model.Permission, 0)
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *RoleRepository) FindRoleByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, description FROM roles WHERE name = $1`, strings.TrimSpace(name)).
		Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Role{}, model.ErrRoleNotFound.WithDetails(name)
	}
	if err != nil {
		return model.Role{}, fmt.Errorf("find role: %w", err)
	}
	return role, nil
}

// AssignRole is idempotent. An empty assignedBy is stored as NULL (system grant).
func (r *RoleRepository) AssignRole(ctx context.Context, userID string, roleID int64, assignedBy string) error {
	var grantor any
	if assignedBy != "" {
		grantor = assignedBy
	}

	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID, grantor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *RoleRepository) RemoveRole(ctx context.Context, userID string, roleID int64) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("remove role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db(ctx).Query(ctx, `SELECT id, name, description FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return collectRoles(rows)
}

func collectRoles(rows pgx.Rows) ([]model.Role, error) {
	defer rows.Close()

	roles := make([]model.Role, 0)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
