package model

import (
	"errors"
	"net/http"

	"go-news-cms/pkg/apierror"
)

// Error kinds returned by the auth core. Compare with errors.Is; the
// values themselves must never be mutated, use WithDetails/WithMessage.
var (
	// Unknown username and wrong password both map here on purpose so a
	// caller cannot tell which usernames exist.
	ErrInvalidCredentials = apierror.New("INVALID_CREDENTIALS", "invalid credentials", "", http.StatusUnauthorized)
	ErrAccountLocked      = apierror.New("ACCOUNT_LOCKED", "account is temporarily locked due to multiple failed login attempts", "", http.StatusForbidden)
	ErrAccountSuspended   = apierror.New("ACCOUNT_SUSPENDED", "account is suspended", "", http.StatusForbidden)
	ErrAccountInactive    = apierror.New("ACCOUNT_INACTIVE", "account is not active", "", http.StatusForbidden)

	ErrUsernameExists = apierror.New("USERNAME_EXISTS", "username already exists", "", http.StatusBadRequest)
	ErrEmailExists    = apierror.New("EMAIL_EXISTS", "email already exists", "", http.StatusBadRequest)
	ErrWeakPassword   = apierror.New("WEAK_PASSWORD", "password does not meet the password policy", "", http.StatusBadRequest)

	ErrInvalidOrExpiredToken = apierror.New("INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", "", http.StatusUnauthorized)
	ErrInvalidRefreshToken   = apierror.New("INVALID_REFRESH_TOKEN", "invalid refresh token", "", http.StatusUnauthorized)
	ErrSessionExpired        = apierror.New("SESSION_EXPIRED", "session expired", "", http.StatusUnauthorized)

	ErrUserNotFound      = apierror.New("USER_NOT_FOUND", "user not found", "", http.StatusNotFound)
	ErrIncorrectPassword = apierror.New("INCORRECT_PASSWORD", "current password is incorrect", "", http.StatusBadRequest)
	ErrNoFieldsToUpdate  = apierror.New("NO_FIELDS_TO_UPDATE", "no valid fields to update", "", http.StatusBadRequest)

	// Token issuer
	ErrInvalidSignature = apierror.New("INVALID_SIGNATURE", "token signature is invalid", "", http.StatusUnauthorized)
	ErrTokenExpired     = apierror.New("TOKEN_EXPIRED", "token has expired", "", http.StatusUnauthorized)
	ErrInvalidToken     = apierror.New("INVALID_TOKEN", "token is malformed", "", http.StatusUnauthorized)

	ErrRoleNotFound = apierror.New("ROLE_NOT_FOUND", "role not found", "", http.StatusNotFound)
	ErrUnauthorized = apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized)
	ErrForbidden    = apierror.New("FORBIDDEN", "insufficient permissions", "", http.StatusForbidden)
	ErrInvalidInput = apierror.New("BAD_REQUEST", "invalid input", "", http.StatusBadRequest)
	ErrRateLimited  = apierror.New("RATE_LIMITED", "too many requests", "", http.StatusTooManyRequests)
)

// ErrSessionNotFound is the ledger's "no matching row". The orchestrator
// translates it into a token error, it never reaches a client as is.
var ErrSessionNotFound = errors.New("session not found")

type PasswordWeakness string

const (
	WeakLength           PasswordWeakness = "length"
	WeakMissingUppercase PasswordWeakness = "missing-uppercase"
	WeakMissingLowercase PasswordWeakness = "missing-lowercase"
	WeakMissingNumber    PasswordWeakness = "missing-number"
	WeakMissingSpecial   PasswordWeakness = "missing-special"
)

func WeakPassword(reason PasswordWeakness, message string) *apierror.APIError {
	return ErrWeakPassword.WithMessage(message).WithDetails(string(reason))
}
