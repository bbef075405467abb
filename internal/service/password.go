package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"go-news-cms/internal/config"
	"go-news-cms/internal/model"
)

const specialCharacters = `!@#$%^&*(),.?":{}|<>`

// PasswordHasher wraps bcrypt. Hashing is CPU bound, so the number of
// concurrent hash/compare calls is capped and waiters honour ctx.
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted
}

func NewPasswordHasher(cost int, concurrency int64) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &PasswordHasher{cost: cost, sem: semaphore.NewWeighted(concurrency)}
}

func (h *PasswordHasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. A mismatch is (false, nil);
// only a malformed digest or a cancelled ctx produce an error.
func (h *PasswordHasher) Verify(ctx context.Context, plain string, digest string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}

type PasswordPolicy struct {
	rules config.PasswordPolicy
}

func NewPasswordPolicy(rules config.PasswordPolicy) PasswordPolicy {
	return PasswordPolicy{rules: rules}
}

// Validate returns a WeakPassword error naming the first rule the password breaks.
func (p PasswordPolicy) Validate(password string) error {
	if len([]rune(password)) < p.rules.MinLength {
		return model.WeakPassword(model.WeakLength,
			fmt.Sprintf("password must be at least %d characters long", p.rules.MinLength))
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case strings.ContainsRune(specialCharacters, r):
			hasSpecial = true
		}
	}

	if p.rules.RequireUppercase && !hasUpper {
		return model.WeakPassword(model.WeakMissingUppercase, "password must contain at least one uppercase letter")
	}
	if p.rules.RequireLowercase && !hasLower {
		return model.WeakPassword(model.WeakMissingLowercase, "password must contain at least one lowercase letter")
	}
	if p.rules.RequireNumber && !hasNumber {
		return model.WeakPassword(model.WeakMissingNumber, "password must contain at least one number")
	}
	if p.rules.RequireSpecial && !hasSpecial {
		return model.WeakPassword(model.WeakMissingSpecial, "password must contain at least one special character")
	}
	return nil
}
