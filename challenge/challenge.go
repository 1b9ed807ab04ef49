package challenge

import (
	"context"
	"time"
)

// Challenge is the outstanding step-up proof for one identity. Starting a new
// challenge overwrites the previous one, which invalidates its token.
type Challenge struct {
	IdentityID string    `json:"identity_id"`
	Token      string    `json:"token"`
	Nonce      string    `json:"nonce"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Repo stores at most one Challenge per identity. Get returns an error
// wrapping internal/errors.ErrNotFound when none exists.
type Repo interface {
	Get(ctx context.Context, identityID string) (*Challenge, error)
	Upsert(ctx context.Context, challenge *Challenge) error
	Delete(ctx context.Context, identityID string) error
}

// State is where an identity sits in the challenge lifecycle. A consumed
// challenge leaves no record behind and reads as StateIdle again.
type State int

const (
	StateIdle State = iota
	StatePending
	StateIssued
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIssued:
		return "issued"
	case StateExpired:
		return "expired"
	default:
		return "idle"
	}
}
