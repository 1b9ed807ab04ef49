package challenge_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/challenge"
	fakechallengerepo "github.com/jrsteele09/go-session-auth/challenge/repofakes"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "Current1!"
	testNewPassword = "Another2@"
	challengeTTL    = 5 * time.Minute
)

type testFixture struct {
	ctx        context.Context
	now        time.Time
	identities *fakeuserrepo.FakeUserRepo
	challenges *fakechallengerepo.FakeChallengeRepo
	hasher     users.Hasher
	machine    *challenge.Machine
	identity   *users.Identity
}

func setupTestFixture(t *testing.T, options ...challenge.MachineOption) *testFixture {
	t.Helper()

	f := &testFixture{
		ctx:        context.Background(),
		now:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		identities: fakeuserrepo.NewFakeUserRepo(),
		challenges: fakechallengerepo.NewFakeChallengeRepo(),
	}
	clock := func() time.Time { return f.now }

	hasher, err := users.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	f.hasher = hasher

	codec, err := token.NewCodec(map[token.Kind]token.KindConfig{
		token.KindAccess:    {Secret: "a", TTL: time.Minute},
		token.KindRefresh:   {Secret: "r", TTL: time.Hour},
		token.KindChallenge: {Secret: "c", TTL: challengeTTL},
	}, token.WithNowFunc(clock))
	require.NoError(t, err)

	hash, err := hasher.HashPassword(testPassword)
	require.NoError(t, err)
	f.identity = &users.Identity{Email: "ada@example.com", Role: users.RoleStaff, PasswordHash: hash}
	require.NoError(t, f.identities.Upsert(f.ctx, f.identity))

	options = append([]challenge.MachineOption{challenge.WithNowFunc(clock)}, options...)
	f.machine, err = challenge.NewMachine(f.challenges, f.identities, codec, hasher, options...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) currentHash(t *testing.T) string {
	t.Helper()
	identity, err := f.identities.GetByID(f.ctx, f.identity.ID)
	require.NoError(t, err)
	return identity.PasswordHash
}

func TestStart(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.machine.Start(f.ctx, f.identity, "nope")
		require.ErrorIs(t, err, apperrors.ErrMismatch)

		state, err := f.machine.State(f.ctx, f.identity.ID)
		require.NoError(t, err)
		require.Equal(t, challenge.StateIdle, state)
	})

	t.Run("issues and stores challenge", func(t *testing.T) {
		f := setupTestFixture(t)
		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)
		require.NotEmpty(t, raw)

		stored, err := f.challenges.Get(f.ctx, f.identity.ID)
		require.NoError(t, err)
		require.Equal(t, raw, stored.Token)
		require.NotEmpty(t, stored.Nonce)

		state, err := f.machine.State(f.ctx, f.identity.ID)
		require.NoError(t, err)
		require.Equal(t, challenge.StateIssued, state)
	})
}

func TestConsume(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		f := setupTestFixture(t)
		err := f.machine.Consume(f.ctx, f.identity.ID, "whatever", testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrNotStarted)
	})

	t.Run("changes password once", func(t *testing.T) {
		f := setupTestFixture(t)
		oldHash := f.currentHash(t)

		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)
		require.NoError(t, f.machine.Consume(f.ctx, f.identity.ID, raw, testNewPassword))

		newHash := f.currentHash(t)
		require.NotEqual(t, oldHash, newHash)
		require.True(t, f.hasher.CheckPasswordHash(testNewPassword, newHash))

		err = f.machine.Consume(f.ctx, f.identity.ID, raw, "YetAnother3#")
		require.ErrorIs(t, err, apperrors.ErrNotStarted)
		require.Equal(t, newHash, f.currentHash(t))
	})

	t.Run("new start invalidates prior token", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)
		f.now = f.now.Add(time.Second)
		second, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)
		require.NotEqual(t, first, second)

		err = f.machine.Consume(f.ctx, f.identity.ID, first, testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrChallengeInvalid)

		require.NoError(t, f.machine.Consume(f.ctx, f.identity.ID, second, testNewPassword))
	})

	t.Run("same as old leaves store untouched", func(t *testing.T) {
		f := setupTestFixture(t)
		oldHash := f.currentHash(t)
		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)

		err = f.machine.Consume(f.ctx, f.identity.ID, raw, testPassword)
		require.ErrorIs(t, err, apperrors.ErrSameAsOld)
		require.Equal(t, oldHash, f.currentHash(t))

		_, err = f.challenges.Get(f.ctx, f.identity.ID)
		require.NoError(t, err, "challenge survives a rejected change")
	})

	t.Run("garbage token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)

		err = f.machine.Consume(f.ctx, f.identity.ID, "garbage", testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrChallengeInvalid)
	})

	t.Run("token of another identity", func(t *testing.T) {
		f := setupTestFixture(t)
		hash, err := f.hasher.HashPassword(testPassword)
		require.NoError(t, err)
		other := &users.Identity{Email: "grace@example.com", Role: users.RoleStaff, PasswordHash: hash}
		require.NoError(t, f.identities.Upsert(f.ctx, other))

		_, err = f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)
		otherRaw, err := f.machine.Start(f.ctx, other, testPassword)
		require.NoError(t, err)

		err = f.machine.Consume(f.ctx, f.identity.ID, otherRaw, testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrChallengeInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		f := setupTestFixture(t)
		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)

		f.now = f.now.Add(challengeTTL + time.Second)
		state, err := f.machine.State(f.ctx, f.identity.ID)
		require.NoError(t, err)
		require.Equal(t, challenge.StateExpired, state)

		err = f.machine.Consume(f.ctx, f.identity.ID, raw, testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrChallengeExpired)

		_, err = f.challenges.Get(f.ctx, f.identity.ID)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("weak password under policy", func(t *testing.T) {
		f := setupTestFixture(t, challenge.WithPolicy(&users.StrongPolicy))
		oldHash := f.currentHash(t)
		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)

		err = f.machine.Consume(f.ctx, f.identity.ID, raw, testNewPassword)
		require.ErrorIs(t, err, apperrors.ErrWeakPassword)
		require.Equal(t, oldHash, f.currentHash(t))

		require.NoError(t, f.machine.Consume(f.ctx, f.identity.ID, raw, "LongerPass12!"))
	})

	t.Run("password too long to hash", func(t *testing.T) {
		f := setupTestFixture(t)
		oldHash := f.currentHash(t)
		raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
		require.NoError(t, err)

		err = f.machine.Consume(f.ctx, f.identity.ID, raw, strings.Repeat("x", users.MaxPasswordBytes+1))
		require.ErrorIs(t, err, apperrors.ErrWeakPassword)
		require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		require.Equal(t, oldHash, f.currentHash(t))
	})
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	f := setupTestFixture(t)
	raw, err := f.machine.Start(f.ctx, f.identity, testPassword)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.machine.Consume(f.ctx, f.identity.ID, raw, testNewPassword)
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, apperrors.ErrNotStarted), "unexpected error %v", err)
	}
	require.Equal(t, 1, ok)
}

func TestNewMachineRequiresDeps(t *testing.T) {
	_, err := challenge.NewMachine(nil, nil, nil, users.Hasher{})
	require.Error(t, err)
}
