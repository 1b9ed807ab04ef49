package config

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type SecurityConfig interface {
	GetPasswordHashRounds() int
	GetPasswordProfile() string
	GetCookieSecure() bool
	GetRequestTimeout() time.Duration
}

type Security struct {
	PasswordHashRounds int           `mapstructure:"password_hash_rounds"`
	PasswordProfile    string        `mapstructure:"password_profile"`
	CookieSecure       bool          `mapstructure:"cookie_secure"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

var _ SecurityConfig = Security{}

func (s Security) GetPasswordHashRounds() int {
	return s.PasswordHashRounds
}

// GetPasswordProfile names the complexity profile enforced on password
// change. Empty disables the check.
func (s Security) GetPasswordProfile() string {
	return s.PasswordProfile
}

func (s Security) GetCookieSecure() bool {
	return s.CookieSecure
}

func (s Security) GetRequestTimeout() time.Duration {
	return s.RequestTimeout
}

func (s Security) validate() error {
	if s.PasswordHashRounds < bcrypt.MinCost || s.PasswordHashRounds > bcrypt.MaxCost {
		return newConfigError("security.password_hash_rounds", "must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, s.PasswordHashRounds)
	}
	switch s.PasswordProfile {
	case "", "default", "strong", "weak":
	default:
		return newConfigError("security.password_profile", "unknown profile %q", s.PasswordProfile)
	}
	return nil
}
