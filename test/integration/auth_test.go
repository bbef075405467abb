//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-news-cms/internal/router"
)

type meData struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})

	env.register(t, "alice", "CorrectPass1!")
	pair := env.login(t, "alice", "CorrectPass1!")

	resp, body := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeData[meData](t, body)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, []string{"registered_user"}, me.Roles)

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeData[tokenPair](t, body)
	require.NotEmpty(t, refreshed.AccessToken)

	// The rotated token replaces the old one on the session.
	resp, _ = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", body.Error.Code)
}

func TestDuplicateRegistrationAndWeakPassword(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "bob", "Str0ng!Pass")

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "BOB", "email": "other@news.test", "password": "Str0ng!Pass",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "USERNAME_EXISTS", body.Error.Code)

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "carol", "email": "carol@news.test", "password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "WEAK_PASSWORD", body.Error.Code)
	assert.Equal(t, "length", body.Error.Details)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "dana", "CorrectPass1!")

	for i := 0; i < 5; i++ {
		resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "dana", "password": "nope"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "INVALID_CREDENTIALS", body.Error.Code)
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "dana", "password": "CorrectPass1!"}, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCOUNT_LOCKED", body.Error.Code)

	var attempts int
	require.NoError(t, env.db.Pool.QueryRow(context.Background(),
		`SELECT failed_login_attempts FROM users WHERE username = 'dana'`).Scan(&attempts))
	assert.Equal(t, 5, attempts)
}

func TestUnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "erin", "CorrectPass1!")

	respUnknown, unknown := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "ghost", "password": "whatever"}, "")
	respWrong, wrong := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "erin", "password": "whatever"}, "")

	require.Equal(t, respUnknown.StatusCode, respWrong.StatusCode)
	assert.Equal(t, unknown.Error, wrong.Error)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "frank", "CorrectPass1!")
	first := env.login(t, "frank", "CorrectPass1!")
	second := env.login(t, "frank", "CorrectPass1!")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
		"oldPassword": "CorrectPass1!", "newPassword": "NewerPass2@",
	}, first.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		resp, _ = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	env.login(t, "frank", "NewerPass2@")
}

func TestSessionsListing(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "gina", "CorrectPass1!")
	env.login(t, "gina", "CorrectPass1!")
	pair := env.login(t, "gina", "CorrectPass1!")

	resp, body := env.do(t, http.MethodGet, "/api/v1/auth/sessions", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData[struct {
		Sessions []map[string]any `json:"sessions"`
	}](t, body)
	assert.Len(t, data.Sessions, 2)
}
