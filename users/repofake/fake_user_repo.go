package fakeuserrepo

import (
	"context"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory identity store. It hands out copies so callers
// cannot mutate stored records.
type FakeUserRepo struct {
	users    map[string]users.Identity
	emailIds map[string]string // email to identity id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]users.Identity),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(_ context.Context, identity *users.Identity) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	if old, ok := ur.users[identity.ID]; ok {
		delete(ur.emailIds, users.NormaliseEmail(old.Email))
	}
	ur.users[identity.ID] = *identity
	ur.emailIds[users.NormaliseEmail(identity.Email)] = identity.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.Identity, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormaliseEmail(email)]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "identity %s", email)
	}
	identity := ur.users[id]
	return &identity, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.Identity, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	identity, ok := ur.users[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "identity %s", id)
	}
	return &identity, nil
}

func (ur *FakeUserRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	identity, ok := ur.users[id]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "identity %s", id)
	}
	identity.PasswordHash = passwordHash
	ur.users[id] = identity
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	identity, ok := ur.users[id]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "identity %s", id)
	}
	delete(ur.emailIds, users.NormaliseEmail(identity.Email))
	delete(ur.users, id)
	return nil
}

// Ping lets the fake stand in as a health-checked store.
func (ur *FakeUserRepo) Ping(context.Context) error {
	return nil
}
