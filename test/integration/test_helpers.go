//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-news-cms/internal/config"
	"go-news-cms/internal/database"
	"go-news-cms/internal/event"
	"go-news-cms/internal/handler"
	"go-news-cms/internal/middleware"
	"go-news-cms/internal/repository"
	"go-news-cms/internal/router"
	"go-news-cms/internal/service"
)

const (
	adminUsername = "chief"
	adminPassword = "Bootstrap1!"
)

type testEnv struct {
	server *httptest.Server
	db     *database.DB
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:       "8080",
		RequestTimeout:   10 * time.Second,
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  168 * time.Hour,
		SessionTTL:       24 * time.Hour,
		Password:         config.PasswordPolicy{MinLength: 8, RequireUppercase: true, RequireLowercase: true, RequireNumber: true, RequireSpecial: true},
		BcryptCost:       4,
		HashConcurrency:  4,
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		DefaultRole:      "registered_user",
		CORSOrigins:      []string{"*"},
		OpenAPIPath:      "../../docs/openapi.yaml",
		BootstrapAdmin: config.BootstrapAdmin{
			Username: adminUsername,
			Email:    "chief@news.test",
			Password: adminPassword,
		},
	}
}

// newTestEnv wires the full stack against TEST_DATABASE_URL on a wiped
// schema. Tests in this package share one database and must not run in
// parallel.
func newTestEnv(t *testing.T, limiters router.Limiters) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{URL: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE users, audit_entries CASCADE`)
	require.NoError(t, err)

	cfg := testConfig()
	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	txManager := database.NewTxManager(pool)
	resolver := service.NewPermissionResolver(repository.NewRoleRepository(pool))

	bus := event.NewBus()
	auditService := service.NewAuditService(repository.NewAuditRepository(pool))
	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go auditService.Run(runCtx, bus)

	authService := service.NewAuthService(service.AuthDeps{
		Users:    userRepo,
		Sessions: sessionRepo,
		Roles:    resolver,
		Lockout:  service.NewLockoutPolicy(userRepo, cfg.LockoutThreshold, cfg.LockoutDuration),
		Hasher:   service.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency),
		Policy:   service.NewPasswordPolicy(cfg.Password),
		Tokens:   service.NewTokenIssuer("integration-access", "integration-refresh", cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Tx:       txManager,
		Events:   bus,
	}, cfg.SessionTTL, cfg.DefaultRole)
	require.NoError(t, authService.Bootstrap(ctx, cfg.BootstrapAdmin))

	userService := service.NewUserService(userRepo, sessionRepo, resolver, txManager, bus)

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(userService),
		Audit:  handler.NewAuditHandler(auditService),
		Docs:   handler.NewDocsHandler(cfg.OpenAPIPath),
		Health: handler.NewHealthHandler(db),
	}, limiters))
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: db}
}

func (e *testEnv) do(t *testing.T, method string, path string, body any, accessToken string) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func (e *testEnv) login(t *testing.T, username string, password string) tokenPair {
	t.Helper()

	resp, env := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair tokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func (e *testEnv) register(t *testing.T, username string, password string) string {
	t.Helper()

	resp, env := e.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    username + "@news.test",
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.User.ID)
	return data.User.ID
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
