package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-auth/users"
)

// Claims is the payload of every token kind. Role is only set on access
// tokens and Nonce only on challenge tokens.
type Claims struct {
	Kind    Kind       `json:"kind"`
	Email   string     `json:"email,omitempty"`
	Name    string     `json:"name,omitempty"`
	Surname string     `json:"surname,omitempty"`
	Role    users.Role `json:"role,omitempty"`
	Nonce   string     `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// AccessClaims carries the whole profile so handlers can render it without a
// store round trip.
func AccessClaims(p users.Profile) Claims {
	return Claims{
		Email:            p.Email,
		Name:             p.Name,
		Surname:          p.Surname,
		Role:             p.Role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID},
	}
}

func RefreshClaims(p users.Profile) Claims {
	return Claims{
		Email:            p.Email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID},
	}
}

func ChallengeClaims(p users.Profile, nonce string) Claims {
	return Claims{
		Email:            p.Email,
		Nonce:            nonce,
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID},
	}
}
