//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-news-cms/internal/router"
)

func TestAdminManagesRoles(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	writerID := env.register(t, "writer", "CorrectPass1!")
	admin := env.login(t, adminUsername, adminPassword)
	writer := env.login(t, "writer", "CorrectPass1!")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/users/"+writerID+"/roles", map[string]string{"role": "editor"}, writer.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/users/"+writerID+"/roles", map[string]string{"role": "editor"}, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decodeData[meData](t, body)
	assert.ElementsMatch(t, []string{"editor", "registered_user"}, user.Roles)
	assert.Contains(t, user.Permissions, "article.publish")

	resp, body = env.do(t, http.MethodPost, "/api/v1/users/"+writerID+"/roles", map[string]string{"role": "emperor"}, admin.AccessToken)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ROLE_NOT_FOUND", body.Error.Code)

	resp, body = env.do(t, http.MethodDelete, "/api/v1/users/"+writerID+"/roles/editor", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"registered_user"}, decodeData[meData](t, body).Roles)
}

func TestSuspendRevokesAccess(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	id := env.register(t, "stringer", "CorrectPass1!")
	admin := env.login(t, adminUsername, adminPassword)
	session := env.login(t, "stringer", "CorrectPass1!")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/users/"+id+"/suspend", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, session.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "stringer", "password": "CorrectPass1!"}, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCOUNT_SUSPENDED", body.Error.Code)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/users/"+id+"/activate", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env.login(t, "stringer", "CorrectPass1!")
}

func TestProfileUpdateAndListing(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "hank", "CorrectPass1!")
	hank := env.login(t, "hank", "CorrectPass1!")
	admin := env.login(t, adminUsername, adminPassword)

	resp, body := env.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{"bio": "Sports desk", "password_hash": "x"}, hank.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sports desk", decodeData[map[string]any](t, body)["bio"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/users", nil, hank.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/users?limit=10", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[struct {
		Users []meData `json:"users"`
	}](t, body)
	assert.Len(t, list.Users, 2)
}

func TestAuditTrailRecordsLogins(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})
	env.register(t, "ivy", "CorrectPass1!")
	env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "ivy", "password": "wrong"}, "")
	admin := env.login(t, adminUsername, adminPassword)

	require.Eventually(t, func() bool {
		resp, body := env.do(t, http.MethodGet, "/api/v1/audit?action=auth.login.failed", nil, admin.AccessToken)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		data := decodeData[struct {
			Items []map[string]any `json:"items"`
		}](t, body)
		return len(data.Items) == 1 && data.Items[0]["status"] == "failure"
	}, 5*time.Second, 50*time.Millisecond)
}
