package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs claims and yields the key used to verify them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	GetVerificationKey(token *jwt.Token) (any, error)
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner signs with HS256 and a shared secret.
type HMACSigner struct {
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
