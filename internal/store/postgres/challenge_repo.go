package postgres

import (
	"context"

	"github.com/jrsteele09/go-session-auth/challenge"
)

var _ challenge.Repo = (*ChallengeRepo)(nil)

type ChallengeRepo struct{ db *DB }

func NewChallengeRepo(db *DB) *ChallengeRepo { return &ChallengeRepo{db: db} }

const (
	qChallengeUpsert = `
INSERT INTO challenges (identity_id, token, nonce, issued_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (identity_id) DO UPDATE
SET token     = EXCLUDED.token,
    nonce     = EXCLUDED.nonce,
    issued_at = EXCLUDED.issued_at;`

	qChallengeGet = `
SELECT identity_id::text, token, nonce, issued_at
FROM challenges
WHERE identity_id = $1;`

	qChallengeDelete = `
DELETE FROM challenges WHERE identity_id = $1;`
)

func (r *ChallengeRepo) Upsert(ctx context.Context, c *challenge.Challenge) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx, qChallengeUpsert, c.IdentityID, c.Token, c.Nonce, c.IssuedAt)
	return mapErr(err, "challenge upsert %s", c.IdentityID)
}

func (r *ChallengeRepo) Get(ctx context.Context, identityID string) (*challenge.Challenge, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var c challenge.Challenge
	if err := r.db.Pool.QueryRow(ctx, qChallengeGet, identityID).
		Scan(&c.IdentityID, &c.Token, &c.Nonce, &c.IssuedAt); err != nil {
		return nil, mapErr(err, "challenge %s", identityID)
	}
	return &c, nil
}

func (r *ChallengeRepo) Delete(ctx context.Context, identityID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx, qChallengeDelete, identityID)
	return mapErr(err, "challenge delete %s", identityID)
}
