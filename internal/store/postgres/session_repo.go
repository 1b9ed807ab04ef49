package postgres

import (
	"context"

	"github.com/jrsteele09/go-session-auth/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct{ db *DB }

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	// One row per identity. The upsert is a single statement, so concurrent
	// logins resolve to whichever write lands last.
	qSessionUpsert = `
INSERT INTO sessions (identity_id, refresh_token, issued_at)
VALUES ($1, $2, $3)
ON CONFLICT (identity_id) DO UPDATE
SET refresh_token = EXCLUDED.refresh_token,
    issued_at     = EXCLUDED.issued_at;`

	qSessionGet = `
SELECT identity_id::text, refresh_token, issued_at
FROM sessions
WHERE identity_id = $1;`
)

func (r *SessionRepo) Upsert(ctx context.Context, s *sessions.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx, qSessionUpsert, s.IdentityID, s.RefreshToken, s.IssuedAt)
	return mapErr(err, "session upsert %s", s.IdentityID)
}

func (r *SessionRepo) Get(ctx context.Context, identityID string) (*sessions.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s sessions.Session
	if err := r.db.Pool.QueryRow(ctx, qSessionGet, identityID).
		Scan(&s.IdentityID, &s.RefreshToken, &s.IssuedAt); err != nil {
		return nil, mapErr(err, "session %s", identityID)
	}
	return &s, nil
}
