package model

import "time"

type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

type AuthClaims struct {
	UserID    string    `json:"userId"`
	Type      TokenKind `json:"type"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Session is a ledger row. Token values are not readable back out of the
// store, only matched against.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

type NewSession struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	IPAddress    string
	UserAgent    string
	ExpiresAt    time.Time
}

type SessionList struct {
	Sessions []Session `json:"sessions"`
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	User         AuthUser `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

type RefreshResult struct {
	AccessToken string `json:"accessToken"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

type MessageData struct {
	Message string `json:"message"`
}
