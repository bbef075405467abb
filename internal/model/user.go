package model

import (
	"slices"
	"strings"
	"time"
)

// User is the stored credential record. PasswordHash never leaves the
// repository/service boundary; handlers only ever see AuthUser.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FullName            string     `json:"full_name"`
	Bio                 string     `json:"bio"`
	AvatarURL           string     `json:"avatar_url"`
	IsActive            bool       `json:"is_active"`
	IsSuspended         bool       `json:"is_suspended"`
	FailedLoginAttempts int        `json:"-"`
	LastFailedLogin     *time.Time `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type AuthUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsSuspended bool      `json:"is_suspended"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u User) Public() AuthUser {
	return AuthUser{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		IsActive:    u.IsActive,
		IsSuspended: u.IsSuspended,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// ProfileUpdate lists every field a user may change about themselves.
// A nil pointer means "leave as is".
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Email     *string `json:"email,omitempty"`
}

func (p ProfileUpdate) IsEmpty() bool {
	return p.FullName == nil && p.Bio == nil && p.AvatarURL == nil && p.Email == nil
}

type UserFilter struct {
	IsActive    *bool
	IsSuspended *bool
	Limit       int
}

type AuthUserList struct {
	Users []AuthUser `json:"users"`
}

type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RoleList struct {
	Roles []Role `json:"roles"`
}

// Principal is what the auth middleware attaches to an authenticated request.
type Principal struct {
	User      AuthUser
	Token     string
	SessionID string
}

func (p Principal) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if slices.Contains(p.User.Roles, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func (p Principal) HasAnyPermission(names ...string) bool {
	for _, name := range names {
		if slices.Contains(p.User.Permissions, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
