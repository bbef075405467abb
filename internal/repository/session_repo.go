package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-news-cms/internal/database"
	"go-news-cms/internal/model"
)

const sessionColumns = `id, user_id, ip_address, user_agent, expires_at, created_at`

// SessionRepository is the session ledger. Only SHA-256 digests of tokens
// are stored, so a dump of the table cannot be replayed as bearer tokens.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) db(ctx context.Context) database.Querier {
	return database.Conn(ctx, r.pool)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

func (r *SessionRepository) Create(ctx context.Context, in model.NewSession) (model.Session, error) {
	s, err := scanSession(r.db(ctx).QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, refresh_token_hash, ip_address, user_agent, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+sessionColumns,
		uuid.NewString(), in.UserID, hashToken(in.AccessToken), hashToken(in.RefreshToken),
		in.IPAddress, in.UserAgent, in.ExpiresAt, time.Now().UTC()))
	if err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) FindByAccessToken(ctx context.Context, token string, userID string) (model.Session, error) {
	return r.findOne(ctx, `token_hash = $1 AND user_id = $2`, hashToken(token), userID)
}

// FindByRefreshToken locks the row, so inside a transaction a concurrent
// logout waits until the rotation commits.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, token string, userID string) (model.Session, error) {
	return r.findOne(ctx, `refresh_token_hash = $1 AND user_id = $2 FOR UPDATE`, hashToken(token), userID)
}

func (r *SessionRepository) findOne(ctx context.Context, where string, args ...any) (model.Session, error) {
	s, err := scanSession(r.db(ctx).QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// Revoke deletes the session owning accessToken. Missing rows are not an error.
func (r *SessionRepository) Revoke(ctx context.Context, accessToken string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hashToken(accessToken))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAll(ctx context.Context, userID string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// Rotate swaps the access token in place; refresh token and expiry are kept.
func (r *SessionRepository) Rotate(ctx context.Context, sessionID string, newAccessToken string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE sessions SET token_hash = $2 WHERE id = $1`, sessionID, hashToken(newAccessToken))
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db(ctx).Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]model.Session, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
