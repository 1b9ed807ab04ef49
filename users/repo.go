package users

import "context"

// Repo is the identity record store. Lookups return an error wrapping
// internal/errors.ErrNotFound when no identity matches.
type Repo interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	Upsert(ctx context.Context, identity *Identity) error
}
