package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-news-cms/internal/model"
)

type tokenClaims struct {
	UserID string          `json:"userId"`
	Type   model.TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access and refresh tokens with separate HS256 secrets.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (t *TokenIssuer) IssueAccessToken(userID string) (string, error) {
	return t.issue(userID, model.TokenAccess)
}

func (t *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	return t.issue(userID, model.TokenRefresh)
}

func (t *TokenIssuer) issue(userID string, kind model.TokenKind) (string, error) {
	secret, ttl := t.settings(kind)
	now := t.now().UTC()

	claims := tokenClaims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature and expiry with the secret belonging to kind and
// rejects tokens of the other kind.
func (t *TokenIssuer) Verify(token string, kind model.TokenKind) (model.AuthClaims, error) {
	secret, _ := t.settings(kind)

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return model.AuthClaims{}, model.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return model.AuthClaims{}, model.ErrInvalidSignature
		default:
			return model.AuthClaims{}, model.ErrInvalidToken
		}
	}

	if !parsed.Valid || claims.Type != kind || claims.UserID == "" {
		return model.AuthClaims{}, model.ErrInvalidToken
	}

	out := model.AuthClaims{
		UserID:  claims.UserID,
		Type:    claims.Type,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (t *TokenIssuer) settings(kind model.TokenKind) ([]byte, time.Duration) {
	if kind == model.TokenRefresh {
		return t.refreshSecret, t.refreshTTL
	}
	return t.accessSecret, t.accessTTL
}
