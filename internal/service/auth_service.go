package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-news-cms/internal/config"
	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
	"go-news-cms/internal/util"
	"go-news-cms/pkg/apierror"
)

const superAdminRole = "super_admin"

const (
	maxFullNameRunes  = 120
	maxBioRunes       = 2000
	maxAvatarURLRunes = 500
)

type CredentialStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

type SessionStore interface {
	Create(ctx context.Context, in model.NewSession) (model.Session, error)
	FindByAccessToken(ctx context.Context, token string, userID string) (model.Session, error)
	FindByRefreshToken(ctx context.Context, token string, userID string) (model.Session, error)
	Revoke(ctx context.Context, accessToken string) error
	RevokeAll(ctx context.Context, userID string) error
	Rotate(ctx context.Context, sessionID string, newAccessToken string) error
	Delete(ctx context.Context, sessionID string) error
	ListForUser(ctx context.Context, userID string) ([]model.Session, error)
}

// Transactor runs fn atomically; stores called with the ctx given to fn
// take part in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuthDeps struct {
	Users    CredentialStore
	Sessions SessionStore
	Roles    *PermissionResolver
	Lockout  *LockoutPolicy
	Hasher   *PasswordHasher
	Policy   PasswordPolicy
	Tokens   *TokenIssuer
	Tx       Transactor
	Events   event.Publisher
}

type AuthService struct {
	users       CredentialStore
	sessions    SessionStore
	roles       *PermissionResolver
	lockout     *LockoutPolicy
	hasher      *PasswordHasher
	policy      PasswordPolicy
	tokens      *TokenIssuer
	tx          Transactor
	events      event.Publisher
	sessionTTL  time.Duration
	defaultRole string
	now         func() time.Time
}

func NewAuthService(deps AuthDeps, sessionTTL time.Duration, defaultRole string) *AuthService {
	events := deps.Events
	if events == nil {
		events = event.Discard{}
	}

	return &AuthService{
		users:       deps.Users,
		sessions:    deps.Sessions,
		roles:       deps.Roles,
		lockout:     deps.Lockout,
		hasher:      deps.Hasher,
		policy:      deps.Policy,
		tokens:      deps.Tokens,
		tx:          deps.Tx,
		events:      events,
		sessionTTL:  sessionTTL,
		defaultRole: defaultRole,
		now:         time.Now,
	}
}

func (s *AuthService) Login(ctx context.Context, in model.LoginInput) (model.LoginResult, error) {
	ctx = withLoginOrigin(ctx, in)

	user, err := s.users.FindByUsername(ctx, in.Username)
	if errors.Is(err, model.ErrUserNotFound) {
		publish(ctx, s.events, event.TypeLoginFailed, event.OutcomeFailure, "", map[string]any{"reason": "unknown_user"})
		return model.LoginResult{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.LoginResult{}, err
	}

	locked, err := s.lockout.IsLocked(ctx, user.ID)
	if err != nil {
		return model.LoginResult{}, err
	}
	if locked {
		publish(ctx, s.events, event.TypeLoginFailed, event.OutcomeFailure, user.ID, map[string]any{"reason": "locked"})
		return model.LoginResult{}, model.ErrAccountLocked
	}

	if user.IsSuspended {
		publish(ctx, s.events, event.TypeLoginFailed, event.OutcomeFailure, user.ID, map[string]any{"reason": "suspended"})
		return model.LoginResult{}, model.ErrAccountSuspended
	}
	if !user.IsActive {
		publish(ctx, s.events, event.TypeLoginFailed, event.OutcomeFailure, user.ID, map[string]any{"reason": "inactive"})
		return model.LoginResult{}, model.ErrAccountInactive
	}

	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		return model.LoginResult{}, err
	}
	if !ok {
		nowLocked, err := s.lockout.RecordFailedAttempt(ctx, user.ID)
		if err != nil {
			return model.LoginResult{}, err
		}
		publish(ctx, s.events, event.TypeLoginFailed, event.OutcomeFailure, user.ID, map[string]any{"reason": "bad_password"})
		if nowLocked {
			slog.Warn("account locked after repeated failed logins", "user_id", user.ID, "ip", in.IPAddress)
			publish(ctx, s.events, event.TypeAccountLocked, event.OutcomeSuccess, user.ID, nil)
		}
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if err := s.lockout.ResetFailedAttempts(ctx, user.ID); err != nil {
		return model.LoginResult{}, err
	}

	authUser, err := s.roles.Resolve(ctx, user)
	if err != nil {
		return model.LoginResult{}, err
	}

	accessToken, refreshToken, err := s.issuePair(user.ID)
	if err != nil {
		return model.LoginResult{}, err
	}

	if _, err := s.sessions.Create(ctx, model.NewSession{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		ExpiresAt:    s.now().UTC().Add(s.sessionTTL),
	}); err != nil {
		return model.LoginResult{}, err
	}

	publish(ctx, s.events, event.TypeLoginSucceeded, event.OutcomeSuccess, user.ID, nil)

	return model.LoginResult{
		User:         authUser,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout drops the session bound to accessToken. A token without a session
// is not an error.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	if err := s.sessions.Revoke(ctx, accessToken); err != nil {
		return err
	}

	subject := ""
	if claims, err := s.tokens.Verify(accessToken, model.TokenAccess); err == nil {
		subject = claims.UserID
	}
	publish(ctx, s.events, event.TypeLogout, event.OutcomeSuccess, subject, nil)
	return nil
}

// Refresh mints a new access token for a live session. The refresh token
// itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshToken, model.TokenRefresh)
	if err != nil {
		return model.RefreshResult{}, model.ErrInvalidRefreshToken
	}

	var accessToken string
	expired := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		session, err := s.sessions.FindByRefreshToken(ctx, refreshToken, claims.UserID)
		if errors.Is(err, model.ErrSessionNotFound) {
			return model.ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}

		// The delete has to commit, so the expiry error is raised after the tx.
		if session.Expired(s.now()) {
			expired = true
			return s.sessions.Delete(ctx, session.ID)
		}

		accessToken, err = s.tokens.IssueAccessToken(claims.UserID)
		if err != nil {
			return err
		}
		// A logout committed after the lookup leaves nothing to rotate.
		if err := s.sessions.Rotate(ctx, session.ID, accessToken); errors.Is(err, model.ErrSessionNotFound) {
			return model.ErrInvalidRefreshToken
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.RefreshResult{}, err
	}
	if expired {
		return model.RefreshResult{}, model.ErrSessionExpired
	}

	publish(ctx, s.events, event.TypeTokenRefreshed, event.OutcomeSuccess, claims.UserID, nil)
	return model.RefreshResult{AccessToken: accessToken}, nil
}

// VerifyToken accepts an access token only while its session row is live.
func (s *AuthService) VerifyToken(ctx context.Context, accessToken string) (model.AuthClaims, error) {
	claims, _, err := s.verifySession(ctx, accessToken)
	return claims, err
}

func (s *AuthService) verifySession(ctx context.Context, accessToken string) (model.AuthClaims, model.Session, error) {
	claims, err := s.tokens.Verify(accessToken, model.TokenAccess)
	if err != nil {
		return model.AuthClaims{}, model.Session{}, model.ErrInvalidOrExpiredToken.WithDetails(detailsOf(err))
	}

	session, err := s.sessions.FindByAccessToken(ctx, accessToken, claims.UserID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return model.AuthClaims{}, model.Session{}, model.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return model.AuthClaims{}, model.Session{}, err
	}

	if session.Expired(s.now()) {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			slog.Warn("failed to delete expired session", "session_id", session.ID, "error", err)
		}
		return model.AuthClaims{}, model.Session{}, model.ErrInvalidOrExpiredToken
	}

	return claims, session, nil
}

// Authenticate backs the request middleware: a verified token plus the
// current state of its user, with roles and permissions resolved.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (model.Principal, error) {
	claims, session, err := s.verifySession(ctx, accessToken)
	if err != nil {
		return model.Principal{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Principal{}, model.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return model.Principal{}, err
	}
	if user.IsSuspended {
		return model.Principal{}, model.ErrAccountSuspended
	}
	if !user.IsActive {
		return model.Principal{}, model.ErrAccountInactive
	}

	authUser, err := s.roles.Resolve(ctx, user)
	if err != nil {
		return model.Principal{}, err
	}

	return model.Principal{User: authUser, Token: accessToken, SessionID: session.ID}, nil
}

func (s *AuthService) Register(ctx context.Context, in model.RegisterInput) (model.AuthUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = util.CleanText(in.FullName, maxFullNameRunes)

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return model.AuthUser{}, model.ErrInvalidInput.WithMessage("username, email and password are required")
	}
	if err := util.ValidateUsername(in.Username); err != nil {
		return model.AuthUser{}, err
	}
	if err := util.ValidateEmail(in.Email); err != nil {
		return model.AuthUser{}, err
	}

	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return model.AuthUser{}, err
	}

	if err := s.policy.Validate(in.Password); err != nil {
		return model.AuthUser{}, err
	}

	user, err := s.createWithRole(ctx, in, s.defaultRole)
	if err != nil {
		return model.AuthUser{}, err
	}

	publish(ctx, s.events, event.TypeUserRegistered, event.OutcomeSuccess, user.ID, map[string]any{"username": user.Username})
	return user, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, username string, email string) error {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return model.ErrUsernameExists
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.ErrEmailExists
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}
	return nil
}

// createWithRole hashes the password and stores the user together with its
// first role so no account is ever left without one.
func (s *AuthService) createWithRole(ctx context.Context, in model.RegisterInput, role string) (model.AuthUser, error) {
	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return model.AuthUser{}, err
	}

	now := s.now().UTC()
	var out model.AuthUser
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.users.Create(ctx, model.User{
			ID:           uuid.NewString(),
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: digest,
			FullName:     in.FullName,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		if _, err := s.roles.AssignRole(ctx, created.ID, role, ""); err != nil {
			return err
		}

		out, err = s.roles.Resolve(ctx, created)
		return err
	})
	return out, err
}

// ChangePassword replaces the hash and ends every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		publish(ctx, s.events, event.TypePasswordChanged, event.OutcomeFailure, userID, map[string]any{"reason": "incorrect_password"})
		return model.ErrIncorrectPassword
	}

	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, userID, digest); err != nil {
			return err
		}
		return s.sessions.RevokeAll(ctx, userID)
	})
	if err != nil {
		return err
	}

	publish(ctx, s.events, event.TypePasswordChanged, event.OutcomeSuccess, userID, nil)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return s.roles.Resolve(ctx, user)
}

func (s *AuthService) Sessions(ctx context.Context, userID string) ([]model.Session, error) {
	return s.sessions.ListForUser(ctx, userID)
}

// Bootstrap creates the first super_admin when the user table is empty.
// It is a no-op once any account exists.
func (s *AuthService) Bootstrap(ctx context.Context, admin config.BootstrapAdmin) error {
	if !admin.Enabled() {
		return nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Debug("bootstrap admin skipped, users already exist", "count", count)
		return nil
	}

	if err := s.policy.Validate(admin.Password); err != nil {
		return err
	}

	user, err := s.createWithRole(ctx, model.RegisterInput{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
		FullName: "Administrator",
	}, superAdminRole)
	if err != nil {
		return err
	}

	slog.Info("bootstrap admin created", "username", user.Username, "user_id", user.ID)
	publish(ctx, s.events, event.TypeBootstrapCreated, event.OutcomeSuccess, user.ID, nil)
	return nil
}

func (s *AuthService) issuePair(userID string) (string, string, error) {
	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func withLoginOrigin(ctx context.Context, in model.LoginInput) context.Context {
	actor := ActorFromContext(ctx)
	if actor.IP == "" {
		actor.IP = in.IPAddress
	}
	if actor.UserAgent == "" {
		actor.UserAgent = in.UserAgent
	}
	return WithActor(ctx, actor)
}

// detailsOf keeps the issuer's reason (expired, bad signature) visible to
// the client without exposing anything else.
func detailsOf(err error) string {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
