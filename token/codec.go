package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/internal/config"
)

var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
)

type kindEntry struct {
	signer Signer
	ttl    time.Duration
}

// Codec issues and verifies signed claim tokens, one secret and lifetime per
// Kind.
type Codec struct {
	kinds   map[Kind]kindEntry
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec fails with a *config.ConfigError when a required kind is missing or
// any configured kind has no secret or a non-positive lifetime.
func NewCodec(kinds map[Kind]KindConfig, options ...CodecOption) (*Codec, error) {
	for _, k := range RequiredKinds {
		if _, ok := kinds[k]; !ok {
			return nil, &config.ConfigError{Key: "jwt." + string(k) + ".secret", Reason: "is not set"}
		}
	}

	c := &Codec{
		kinds:   make(map[Kind]kindEntry, len(kinds)),
		nowFunc: time.Now,
	}
	for k, kc := range kinds {
		if !k.Valid() {
			return nil, &config.ConfigError{Key: "jwt." + string(k), Reason: "unknown token kind"}
		}
		if err := config.ValidateTokenKind(string(k), config.TokenKindConfig{Secret: kc.Secret, TTL: kc.TTL}); err != nil {
			return nil, err
		}
		c.kinds[k] = kindEntry{signer: NewHMACSigner(kc.Secret), ttl: kc.TTL}
	}

	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Codec) entry(kind Kind) (kindEntry, error) {
	e, ok := c.kinds[kind]
	if !ok {
		return kindEntry{}, &config.ConfigError{Key: "jwt." + string(kind), Reason: "token kind is not configured"}
	}
	return e, nil
}

// TTL is the configured lifetime of kind, zero when kind is not configured.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.kinds[kind].ttl
}

// Issue signs claims as kind. Kind, issued-at, expiry and a random token id are
// always set by the codec and override whatever the caller put there.
func (c *Codec) Issue(kind Kind, claims Claims) (string, error) {
	e, err := c.entry(kind)
	if err != nil {
		return "", err
	}
	now := c.nowFunc()
	claims.Kind = kind
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(e.ttl))
	claims.ID = uuid.NewString()
	return e.signer.Sign(claims)
}

// Verify checks raw against kind's secret. A well signed token past its expiry
// yields ErrExpired; anything else that fails yields ErrInvalidSignature.
func (c *Codec) Verify(kind Kind, raw string) (*Claims, error) {
	e, err := c.entry(kind)
	if err != nil {
		return nil, err
	}

	var claims Claims
	_, err = jwt.ParseWithClaims(raw, &claims, e.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{e.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: token kind %q presented as %q", ErrInvalidSignature, claims.Kind, kind)
	}
	return &claims, nil
}
