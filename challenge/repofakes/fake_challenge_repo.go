package fakechallengerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-auth/challenge"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

var _ challenge.Repo = (*FakeChallengeRepo)(nil)

type FakeChallengeRepo struct {
	challenges map[string]challenge.Challenge
	lock       sync.RWMutex
}

func NewFakeChallengeRepo() *FakeChallengeRepo {
	return &FakeChallengeRepo{
		challenges: make(map[string]challenge.Challenge),
	}
}

func (cr *FakeChallengeRepo) Get(_ context.Context, identityID string) (*challenge.Challenge, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	c, ok := cr.challenges[identityID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "challenge for %s", identityID)
	}
	return &c, nil
}

func (cr *FakeChallengeRepo) Upsert(_ context.Context, c *challenge.Challenge) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.challenges[c.IdentityID] = *c
	return nil
}

func (cr *FakeChallengeRepo) Delete(_ context.Context, identityID string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	delete(cr.challenges, identityID)
	return nil
}
