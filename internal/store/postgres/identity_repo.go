package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jrsteele09/go-session-auth/users"
)

var _ users.Repo = (*IdentityRepo)(nil)

type IdentityRepo struct {
	db *DB
}

func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

const (
	qIdentityUpsert = `
INSERT INTO identities (id, email, name, surname, role, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email         = EXCLUDED.email,
    name          = EXCLUDED.name,
    surname       = EXCLUDED.surname,
    role          = EXCLUDED.role,
    password_hash = EXCLUDED.password_hash,
    updated_at    = NOW();`

	qIdentityByID = `
SELECT id::text, email, name, surname, role, password_hash
FROM identities
WHERE id = $1;`

	qIdentityByEmail = `
SELECT id::text, email, name, surname, role, password_hash
FROM identities
WHERE lower(email) = lower($1);`

	qIdentityUpdatePassword = `
UPDATE identities
SET password_hash = $2,
    updated_at    = NOW()
WHERE id = $1;`
)

func (r *IdentityRepo) Upsert(ctx context.Context, identity *users.Identity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	_, err := r.db.Pool.Exec(ctx, qIdentityUpsert,
		identity.ID, users.NormaliseEmail(identity.Email), identity.Name, identity.Surname,
		identity.Role.String(), identity.PasswordHash)
	return mapErr(err, "identity upsert %s", identity.ID)
}

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*users.Identity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	identity, err := scanIdentity(r.db.Pool.QueryRow(ctx, qIdentityByID, id))
	if err != nil {
		return nil, mapErr(err, "identity %s", id)
	}
	return identity, nil
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*users.Identity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	identity, err := scanIdentity(r.db.Pool.QueryRow(ctx, qIdentityByEmail, users.NormaliseEmail(email)))
	if err != nil {
		return nil, mapErr(err, "identity %s", email)
	}
	return identity, nil
}

func (r *IdentityRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qIdentityUpdatePassword, id, passwordHash)
	if err != nil {
		return mapErr(err, "identity update password %s", id)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "identity %s", id)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*users.Identity, error) {
	var (
		identity users.Identity
		role     string
	)
	if err := row.Scan(&identity.ID, &identity.Email, &identity.Name, &identity.Surname, &role, &identity.PasswordHash); err != nil {
		return nil, err
	}
	parsed, err := users.ParseRole(role)
	if err != nil {
		return nil, err
	}
	identity.Role = parsed
	return &identity, nil
}
