package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-news-cms/internal/database"
	"go-news-cms/internal/model"
)

const userColumns = `id, username, email, password_hash, full_name, bio, avatar_url,
	is_active, is_suspended, failed_login_attempts, last_failed_login, locked_until,
	created_at, updated_at`

const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) db(ctx context.Context) database.Querier {
	return database.Conn(ctx, r.pool)
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Bio, &u.AvatarURL,
		&u.IsActive, &u.IsSuspended, &u.FailedLoginAttempts, &u.LastFailedLogin, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (model.User, error) {
	u, err := scanUser(r.db(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, `lower(username) = lower($1)`, strings.TrimSpace(username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *UserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	created, err := scanUser(r.db(ctx).QueryRow(ctx,
		`INSERT INTO users (id, username, email, password_hash, full_name, bio, avatar_url,
		                    is_active, is_suspended, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+userColumns,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Bio, u.AvatarURL,
		u.IsActive, u.IsSuspended, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return model.User{}, mapped
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UpdateProfile writes only the fields set in update. The SET list is built
// from the struct, never from caller-supplied column names.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (model.User, error) {
	if update.IsEmpty() {
		return model.User{}, model.ErrNoFieldsToUpdate
	}

	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, strings.TrimSpace(*value))
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("full_name", update.FullName)
	add("bio", update.Bio)
	add("avatar_url", update.AvatarURL)
	add("email", update.Email)

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	u, err := scanUser(r.db(ctx).QueryRow(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+userColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return model.User{}, mapped
		}
		return model.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// RecordFailedAttempt increments the counter and, once it reaches threshold,
// sets locked_until, all in one statement. Column references on the right of
// SET see the pre-update row, so concurrent failures never lose an increment.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, userID string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var attempts int
	var lockedUntil *time.Time
	err := r.db(ctx).QueryRow(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     last_failed_login = $2,
		     locked_until = CASE WHEN failed_login_attempts + 1 >= $3 THEN $4 ELSE locked_until END,
		     updated_at = $2
		 WHERE id = $1
		 RETURNING failed_login_attempts, locked_until`,
		userID, now, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, model.ErrUserNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("record failed attempt: %w", err)
	}
	return attempts, lockedUntil, nil
}

func (r *UserRepository) LockedUntil(ctx context.Context, userID string) (*time.Time, error) {
	var lockedUntil *time.Time
	err := r.db(ctx).QueryRow(ctx, `SELECT locked_until FROM users WHERE id = $1`, userID).Scan(&lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read lock state: %w", err)
	}
	return lockedUntil, nil
}

// ClearExpiredLock resets the counter and lock only if the lock has already
// lapsed at now. It reports whether a row was changed.
func (r *UserRepository) ClearExpiredLock(ctx context.Context, userID string, now time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		 WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= $2`,
		userID, now)
	if err != nil {
		return false, fmt.Errorf("clear expired lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, userID string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

func (r *UserRepository) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET is_suspended = $2, updated_at = $3 WHERE id = $1`,
		userID, suspended, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set suspended: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// Activate lifts a suspension and marks the account active again.
func (r *UserRepository) Activate(ctx context.Context, userID string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users SET is_suspended = false, is_active = true, updated_at = $2 WHERE id = $1`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.IsSuspended != nil {
		args = append(args, *filter.IsSuspended)
		where = append(where, fmt.Sprintf("is_suspended = $%d", len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}

	switch pgErr.ConstraintName {
	case "users_username_key":
		return model.ErrUsernameExists
	case "users_email_key":
		return model.ErrEmailExists
	}
	return nil
}
