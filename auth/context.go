package auth

import (
	"context"

	"github.com/jrsteele09/go-session-auth/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the authenticated users.Profile
const ContextKeyIdentity ContextKey = "identity"

func WithIdentity(ctx context.Context, identity users.Profile) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

func IdentityFrom(ctx context.Context) (users.Profile, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(users.Profile)
	return identity, ok
}
