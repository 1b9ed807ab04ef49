package config

import (
	"errors"
	"time"
)

// Token kind names as they appear under the jwt config key.
const (
	TokenAccess    = "access"
	TokenRefresh   = "refresh"
	TokenChallenge = "challenge"
	TokenStepUp    = "step_up"
)

// RequiredTokenKinds must be configured for the service to start.
var RequiredTokenKinds = []string{TokenAccess, TokenRefresh, TokenChallenge}

type TokenConfig interface {
	GetTokenKind(kind string) (TokenKindConfig, bool)
	GetTokenKinds() map[string]TokenKindConfig
}

type TokenKindConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type Tokens struct {
	Access    TokenKindConfig `mapstructure:"access"`
	Refresh   TokenKindConfig `mapstructure:"refresh"`
	Challenge TokenKindConfig `mapstructure:"challenge"`
	StepUp    TokenKindConfig `mapstructure:"step_up"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetTokenKind(kind string) (TokenKindConfig, bool) {
	switch kind {
	case TokenAccess:
		return t.Access, true
	case TokenRefresh:
		return t.Refresh, true
	case TokenChallenge:
		return t.Challenge, true
	case TokenStepUp:
		return t.StepUp, t.StepUp.Secret != ""
	}
	return TokenKindConfig{}, false
}

// GetTokenKinds returns every configured kind. The reserved step-up kind is
// only included once it has a secret.
func (t Tokens) GetTokenKinds() map[string]TokenKindConfig {
	kinds := make(map[string]TokenKindConfig, 4)
	for _, k := range []string{TokenAccess, TokenRefresh, TokenChallenge, TokenStepUp} {
		if kc, ok := t.GetTokenKind(k); ok {
			kinds[k] = kc
		}
	}
	return kinds
}

func (t Tokens) validate() error {
	var errs []error
	seen := make(map[string]string)
	for _, k := range append(RequiredTokenKinds, TokenStepUp) {
		kc, ok := t.GetTokenKind(k)
		if !ok {
			continue
		}
		if err := ValidateTokenKind(k, kc); err != nil {
			errs = append(errs, err)
			continue
		}
		if other, dup := seen[kc.Secret]; dup {
			errs = append(errs, newConfigError("jwt."+k+".secret", "must differ from the %s secret", other))
			continue
		}
		seen[kc.Secret] = k
	}
	return errors.Join(errs...)
}

// ValidateTokenKind checks a single kind's secret and TTL.
func ValidateTokenKind(kind string, kc TokenKindConfig) error {
	if kc.Secret == "" {
		return newConfigError("jwt."+kind+".secret", "is not set")
	}
	if kc.TTL <= 0 {
		return newConfigError("jwt."+kind+".ttl", "must be a positive duration, got %s", kc.TTL)
	}
	return nil
}
