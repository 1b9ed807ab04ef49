package token

import (
	"time"

	"github.com/jrsteele09/go-session-auth/internal/config"
)

// Kind selects the secret and lifetime a token is issued with. Every kind has
// its own secret, so a token of one kind never verifies as another.
type Kind string

const (
	KindAccess    Kind = config.TokenAccess
	KindRefresh   Kind = config.TokenRefresh
	KindChallenge Kind = config.TokenChallenge
	KindStepUp    Kind = config.TokenStepUp // reserved, nothing issues it yet
)

// RequiredKinds must be present when building a Codec.
var RequiredKinds = []Kind{KindAccess, KindRefresh, KindChallenge}

func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindChallenge, KindStepUp:
		return true
	}
	return false
}

type KindConfig struct {
	Secret string
	TTL    time.Duration
}

// KindConfigsFrom reads the per-kind secrets and lifetimes out of the service
// configuration.
func KindConfigsFrom(cfg config.TokenConfig) map[Kind]KindConfig {
	kinds := make(map[Kind]KindConfig)
	for name, kc := range cfg.GetTokenKinds() {
		kinds[Kind(name)] = KindConfig{Secret: kc.Secret, TTL: kc.TTL}
	}
	return kinds
}
