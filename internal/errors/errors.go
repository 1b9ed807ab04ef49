package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session and challenge lifecycle
var (
	// Authentication errors
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMismatch           = errors.New("password mismatch")

	// Refresh errors
	ErrMissingRefreshToken  = errors.New("missing refresh token")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")

	// Challenge errors
	ErrNotStarted       = errors.New("you have not started the challenge")
	ErrChallengeInvalid = errors.New("invalid OTP code")
	ErrChallengeExpired = errors.New("challenge expired")

	// Password errors
	ErrSameAsOld    = errors.New("new password must be different from the old one")
	ErrWeakPassword = errors.New("password does not meet the complexity requirements")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

// Kind groups errors by how a caller is expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindExpired:
		return "expired"
	default:
		return "internal"
	}
}

var kinds = []struct {
	target error
	kind   Kind
	code   string
}{
	{ErrExpiredToken, KindExpired, "token_expired"},

	{ErrInvalidRequest, KindValidation, "invalid_request"},
	{ErrMissingRefreshToken, KindValidation, "missing_refresh_token"},
	{ErrSameAsOld, KindValidation, "same_as_old"},
	{ErrWeakPassword, KindValidation, "weak_password"},

	{ErrMissingToken, KindUnauthenticated, "missing_token"},
	{ErrInvalidToken, KindUnauthenticated, "invalid_token"},
	{ErrInvalidCredentials, KindUnauthenticated, "invalid_credentials"},
	{ErrMismatch, KindUnauthenticated, "password_mismatch"},
	{ErrInvalidRefreshToken, KindUnauthenticated, "invalid_refresh_token"},
	{ErrRefreshTokenMismatch, KindUnauthenticated, "refresh_token_mismatch"},
	{ErrNotStarted, KindUnauthenticated, "challenge_not_started"},
	{ErrChallengeInvalid, KindUnauthenticated, "challenge_invalid"},
	{ErrChallengeExpired, KindUnauthenticated, "challenge_expired"},
}

// KindOf classifies err against the taxonomy above. Errors outside the
// taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return KindInternal
}

// Code returns a short machine readable code for a taxonomy error, or "" when
// err is not part of it.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.code
		}
	}
	return ""
}

// FromCode is the inverse of Code.
func FromCode(code string) (error, bool) {
	for _, k := range kinds {
		if k.code == code {
			return k.target, true
		}
	}
	return nil, false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
