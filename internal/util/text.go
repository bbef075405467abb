package util

import (
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"go-news-cms/pkg/apierror"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MaxEmailLength    = 254
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func invalid(message string, details string) *apierror.APIError {
	return apierror.New("BAD_REQUEST", message, details, http.StatusBadRequest)
}

// CleanText drops control and invisible characters, trims the result and
// truncates it to maxRunes runes. A maxRunes of 0 means no limit.
func CleanText(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || isInvisibleUnicode(r) {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.TrimSpace(b.String())
	if maxRunes > 0 {
		// Truncate by runes so multi-byte characters are never split.
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}

// ValidateUsername accepts ASCII letters, digits, dot, underscore and dash.
func ValidateUsername(username string) error {
	n := len(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return invalid("username must be between 3 and 50 characters", username)
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username may only contain letters, digits, '.', '_' and '-'", username)
	}
	return nil
}

// ValidateEmail accepts a bare address; display names are rejected.
func ValidateEmail(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return invalid("email is not valid", email)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return invalid("email is not valid", email)
	}
	return nil
}

// isInvisibleUnicode reports zero-width and formatting characters that
// render as nothing and let two usernames look identical.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // zero-width space
		'\u200C', // zero-width non-joiner
		'\u200D', // zero-width joiner
		'\u2060', // word joiner
		'\uFEFF': // BOM
		return true
	}
	return unicode.Is(unicode.Cf, r)
}
