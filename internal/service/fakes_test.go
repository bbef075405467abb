package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"go-news-cms/internal/config"
	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memUsers mimics the semantics of the postgres credential store,
// including case-insensitive uniqueness and the atomic failure counter.
type memUsers struct {
	mu   sync.Mutex
	byID map[string]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]model.User{}}
}

func (m *memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (model.User, error) {
	return m.findBy(func(u model.User) bool { return strings.EqualFold(u.Username, strings.TrimSpace(username)) })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	return m.findBy(func(u model.User) bool { return strings.EqualFold(u.Email, strings.TrimSpace(email)) })
}

func (m *memUsers) findBy(match func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memUsers) Create(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Username, u.Username) {
			return model.User{}, model.ErrUsernameExists
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return model.User{}, model.ErrEmailExists
		}
	}
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	return m.mutate(userID, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (m *memUsers) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id string, update model.ProfileUpdate) (model.User, error) {
	if update.IsEmpty() {
		return model.User{}, model.ErrNoFieldsToUpdate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	if update.Email != nil {
		for otherID, other := range m.byID {
			if otherID != id && strings.EqualFold(other.Email, *update.Email) {
				return model.User{}, model.ErrEmailExists
			}
		}
		u.Email = *update.Email
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Bio != nil {
		u.Bio = *update.Bio
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) SetSuspended(_ context.Context, userID string, suspended bool) error {
	return m.mutate(userID, func(u *model.User) { u.IsSuspended = suspended })
}

func (m *memUsers) Activate(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *model.User) {
		u.IsSuspended = false
		u.IsActive = true
	})
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memUsers) List(_ context.Context, filter model.UserFilter) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.byID))
	for _, u := range m.byID {
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsSuspended != nil && u.IsSuspended != *filter.IsSuspended {
			continue
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b model.User) int { return strings.Compare(a.Username, b.Username) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memUsers) RecordFailedAttempt(_ context.Context, userID string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return 0, nil, model.ErrUserNotFound
	}
	u.FailedLoginAttempts++
	u.LastFailedLogin = &now
	if u.FailedLoginAttempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	m.byID[userID] = u
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (m *memUsers) LockedUntil(_ context.Context, userID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return u.LockedUntil, nil
}

func (m *memUsers) ClearExpiredLock(_ context.Context, userID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok || u.LockedUntil == nil || u.LockedUntil.After(now) {
		return false, nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	m.byID[userID] = u
	return true, nil
}

func (m *memUsers) ResetFailedAttempts(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *model.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (m *memUsers) mutate(userID string, fn func(u *model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	fn(&u)
	m.byID[userID] = u
	return nil
}

func (m *memUsers) get(id string) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

type memSessionRow struct {
	session model.Session
	access  string
	refresh string
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]memSessionRow
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]memSessionRow{}}
}

func (m *memSessions) Create(_ context.Context, in model.NewSession) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Session{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	m.rows[s.ID] = memSessionRow{session: s, access: in.AccessToken, refresh: in.RefreshToken}
	return s, nil
}

func (m *memSessions) FindByAccessToken(_ context.Context, token string, userID string) (model.Session, error) {
	return m.find(func(r memSessionRow) bool { return r.access == token && r.session.UserID == userID })
}

func (m *memSessions) FindByRefreshToken(_ context.Context, token string, userID string) (model.Session, error) {
	return m.find(func(r memSessionRow) bool { return r.refresh == token && r.session.UserID == userID })
}

func (m *memSessions) find(match func(memSessionRow) bool) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if match(r) {
			return r.session, nil
		}
	}
	return model.Session{}, model.ErrSessionNotFound
}

func (m *memSessions) Revoke(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.access == accessToken {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memSessions) RevokeAll(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.session.UserID == userID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memSessions) Rotate(_ context.Context, sessionID string, newAccessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	r.access = newAccessToken
	m.rows[sessionID] = r
	return nil
}

func (m *memSessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, sessionID)
	return nil
}

func (m *memSessions) ListForUser(_ context.Context, userID string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Session, 0)
	for _, r := range m.rows {
		if r.session.UserID == userID {
			out = append(out, r.session)
		}
	}
	return out, nil
}

func (m *memSessions) countFor(userID string) int {
	sessions, _ := m.ListForUser(context.Background(), userID)
	return len(sessions)
}

type memRoles struct {
	mu        sync.Mutex
	roles     map[string]model.Role
	rolePerms map[int64][]model.Permission
	userRoles map[string]map[int64]string
}

// newMemRoles seeds the same reference data as the 002 migration.
func newMemRoles() *memRoles {
	perm := func(id int64, name string) model.Permission { return model.Permission{ID: id, Name: name} }
	create, edit, publishPerm, del := perm(1, "article.create"), perm(2, "article.edit"), perm(3, "article.publish"), perm(4, "article.delete")
	category, users, audit := perm(5, "category.manage"), perm(10, "user.manage"), perm(11, "audit.read")

	return &memRoles{
		roles: map[string]model.Role{
			"super_admin":     {ID: 1, Name: "super_admin"},
			"admin":           {ID: 2, Name: "admin"},
			"editor":          {ID: 3, Name: "editor"},
			"author":          {ID: 4, Name: "author"},
			"registered_user": {ID: 5, Name: "registered_user"},
		},
		rolePerms: map[int64][]model.Permission{
			1: {create, edit, publishPerm, del, category, users, audit},
			2: {create, edit, publishPerm, del, category, users, audit},
			3: {create, edit, publishPerm, del, category},
			4: {create, edit},
		},
		userRoles: map[string]map[int64]string{},
	}
}

func (m *memRoles) RolesOf(_ context.Context, userID string) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Role, 0)
	for _, role := range m.roles {
		if _, ok := m.userRoles[userID][role.ID]; ok {
			out = append(out, role)
		}
	}
	slices.SortFunc(out, func(a, b model.Role) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *memRoles) PermissionsOfRoles(_ context.Context, roleIDs []int64) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Permission, 0)
	for _, id := range roleIDs {
		out = append(out, m.rolePerms[id]...)
	}
	return out, nil
}

func (m *memRoles) FindRoleByName(_ context.Context, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[strings.TrimSpace(name)]
	if !ok {
		return model.Role{}, model.ErrRoleNotFound.WithDetails(name)
	}
	return role, nil
}

func (m *memRoles) AssignRole(_ context.Context, userID string, roleID int64, assignedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = map[int64]string{}
	}
	if _, exists := m.userRoles[userID][roleID]; !exists {
		m.userRoles[userID][roleID] = assignedBy
	}
	return nil
}

func (m *memRoles) RemoveRole(_ context.Context, userID string, roleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userRoles[userID][roleID]; !ok {
		return false, nil
	}
	delete(m.userRoles[userID], roleID)
	return true, nil
}

func (m *memRoles) ListRoles(_ context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	slices.SortFunc(out, func(a, b model.Role) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Type, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBus) last(t event.Type) (event.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == t {
			return b.events[i], true
		}
	}
	return event.Event{}, false
}

type harness struct {
	auth     *AuthService
	users    *memUsers
	sessions *memSessions
	roles    *memRoles
	resolver *PermissionResolver
	tokens   *TokenIssuer
	bus      *recordingBus
	clock    *fakeClock
}

var testPasswordRules = config.PasswordPolicy{
	MinLength:        8,
	RequireUppercase: true,
	RequireLowercase: true,
	RequireNumber:    true,
	RequireSpecial:   true,
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		roles:    newMemRoles(),
		bus:      &recordingBus{},
		clock:    newFakeClock(),
	}

	h.resolver = NewPermissionResolver(h.roles)
	h.tokens = NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 168*time.Hour)
	h.tokens.now = h.clock.Now

	lockout := NewLockoutPolicy(h.users, 5, 15*time.Minute)
	lockout.now = h.clock.Now

	h.auth = NewAuthService(AuthDeps{
		Users:    h.users,
		Sessions: h.sessions,
		Roles:    h.resolver,
		Lockout:  lockout,
		Hasher:   NewPasswordHasher(4, 4),
		Policy:   NewPasswordPolicy(testPasswordRules),
		Tokens:   h.tokens,
		Tx:       passthroughTx{},
		Events:   h.bus,
	}, 24*time.Hour, "registered_user")
	h.auth.now = h.clock.Now

	return h
}

func (h *harness) register(t *testing.T, username string, password string) model.AuthUser {
	t.Helper()

	u, err := h.auth.Register(context.Background(), model.RegisterInput{
		Username: username,
		Email:    username + "@news.test",
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func (h *harness) login(username string, password string) (model.LoginResult, error) {
	return h.auth.Login(context.Background(), model.LoginInput{
		Username:  username,
		Password:  password,
		IPAddress: "203.0.113.7",
		UserAgent: "newsroom-test",
	})
}
