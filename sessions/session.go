package sessions

import (
	"context"
	"time"
)

// Session records the one refresh token an identity currently holds. Writing a
// new Session for the same identity replaces the previous one, so at most one
// refresh token per identity is ever accepted.
type Session struct {
	IdentityID   string    `json:"identity_id"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Repo stores Sessions keyed by identity id. Get returns an error wrapping
// internal/errors.ErrNotFound when the identity has no Session.
type Repo interface {
	Get(ctx context.Context, identityID string) (*Session, error)
	Upsert(ctx context.Context, session *Session) error
}
