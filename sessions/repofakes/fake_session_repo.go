package fakesessionrepo

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]sessions.Session
	writes   int
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.sessions[session.IdentityID] = *session
	sr.writes++
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, identityID string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[identityID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "session for %s", identityID)
	}
	return &s, nil
}

// Writes counts Upsert calls, for tests asserting a flow did not touch the store.
func (sr *FakeSessionRepo) Writes() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.writes
}
