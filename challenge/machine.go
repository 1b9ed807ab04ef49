package challenge

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/rs/zerolog"
)

// Machine drives the step-up challenge that gates password changes. Start and
// Consume for the same identity never interleave within a process.
type Machine struct {
	repo       Repo
	identities users.Repo
	codec      *token.Codec
	hasher     users.Hasher
	policy     *users.PasswordPolicy
	locks      *utils.KeyedMutex
	nowFunc    func() time.Time
	logger     zerolog.Logger
	metrics    *obs.Metrics

	pendingMu sync.Mutex
	pending   map[string]int
}

type MachineOption func(*Machine)

func WithNowFunc(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.nowFunc = now
	}
}

// WithPolicy enforces a complexity profile on the new password. A nil policy
// disables the check.
func WithPolicy(policy *users.PasswordPolicy) MachineOption {
	return func(m *Machine) {
		m.policy = policy
	}
}

func WithLogger(logger zerolog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithMetrics(metrics *obs.Metrics) MachineOption {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

func NewMachine(repo Repo, identities users.Repo, codec *token.Codec, hasher users.Hasher, options ...MachineOption) (*Machine, error) {
	if repo == nil {
		return nil, errors.New("[NewMachine] challenge repo is required")
	}
	if identities == nil {
		return nil, errors.New("[NewMachine] identity repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewMachine] codec is required")
	}

	m := &Machine{
		repo:       repo,
		identities: identities,
		codec:      codec,
		hasher:     hasher,
		locks:      utils.NewKeyedMutex(),
		nowFunc:    time.Now,
		logger:     zerolog.Nop(),
		pending:    make(map[string]int),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Start checks the supplied password against identity and, on a match, issues
// a fresh challenge token that replaces any outstanding one.
func (m *Machine) Start(ctx context.Context, identity *users.Identity, suppliedPassword string) (string, error) {
	unlock := m.locks.Lock(identity.ID)
	defer unlock()
	m.setPending(identity.ID, 1)
	defer m.setPending(identity.ID, -1)

	if !m.hasher.CheckPasswordHash(suppliedPassword, identity.PasswordHash) {
		m.metrics.Challenge("start", obs.ResultRejected)
		return "", apperrors.ErrMismatch
	}

	nonce := uuid.NewString()
	raw, err := m.codec.Issue(token.KindChallenge, token.ChallengeClaims(identity.Profile(), nonce))
	if err != nil {
		m.metrics.Challenge("start", obs.ResultError)
		return "", err
	}

	err = m.repo.Upsert(ctx, &Challenge{
		IdentityID: identity.ID,
		Token:      raw,
		Nonce:      nonce,
		IssuedAt:   m.nowFunc(),
	})
	if err != nil {
		m.metrics.Challenge("start", obs.ResultError)
		return "", apperrors.Wrapf(err, "[Machine Start] store challenge for %s", identity.ID)
	}

	m.metrics.Challenge("start", obs.ResultOK)
	m.logger.Debug().Str("identity", identity.ID).Msg("challenge issued")
	return raw, nil
}

// Consume redeems the outstanding challenge for identityID and sets the new
// password. Nothing is written unless every check passes.
func (m *Machine) Consume(ctx context.Context, identityID, presentedToken, newPassword string) error {
	unlock := m.locks.Lock(identityID)
	defer unlock()

	err := m.consume(ctx, identityID, presentedToken, newPassword)
	switch {
	case err == nil:
		m.metrics.Challenge("consume", obs.ResultOK)
	case apperrors.Is(err, apperrors.ErrChallengeExpired):
		m.metrics.Challenge("consume", obs.ResultExpired)
	case apperrors.KindOf(err) == apperrors.KindInternal:
		m.metrics.Challenge("consume", obs.ResultError)
	default:
		m.metrics.Challenge("consume", obs.ResultRejected)
	}
	return err
}

func (m *Machine) consume(ctx context.Context, identityID, presentedToken, newPassword string) error {
	stored, err := m.repo.Get(ctx, identityID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ErrNotStarted
	}
	if err != nil {
		return apperrors.Wrapf(err, "[Machine Consume] load challenge for %s", identityID)
	}

	if m.expired(stored) {
		if err := m.repo.Delete(ctx, identityID); err != nil {
			m.logger.Warn().Err(err).Str("identity", identityID).Msg("failed to drop expired challenge")
		}
		return apperrors.ErrChallengeExpired
	}

	claims, err := m.codec.Verify(token.KindChallenge, presentedToken)
	switch {
	case errors.Is(err, token.ErrExpired):
		return apperrors.ErrChallengeExpired
	case errors.Is(err, token.ErrInvalidSignature):
		return apperrors.ErrChallengeInvalid
	case err != nil:
		return err
	}

	if claims.Subject != identityID ||
		claims.Nonce != stored.Nonce ||
		subtle.ConstantTimeCompare([]byte(presentedToken), []byte(stored.Token)) != 1 {
		return apperrors.ErrChallengeInvalid
	}

	identity, err := m.identities.GetByID(ctx, identityID)
	if err != nil {
		return apperrors.Wrapf(err, "[Machine Consume] load identity %s", identityID)
	}
	if m.hasher.CheckPasswordHash(newPassword, identity.PasswordHash) {
		return apperrors.ErrSameAsOld
	}
	if m.policy != nil {
		if check := m.policy.Check(newPassword); !check.Valid() {
			return apperrors.Wrapf(apperrors.ErrWeakPassword, "failed %s", strings.Join(check.Failed(), ", "))
		}
	}

	hash, err := m.hasher.HashPassword(newPassword)
	if err != nil {
		return apperrors.Wrapf(err, "[Machine Consume] hash password")
	}
	if err := m.identities.UpdatePasswordHash(ctx, identityID, hash); err != nil {
		return apperrors.Wrapf(err, "[Machine Consume] update password for %s", identityID)
	}
	if err := m.repo.Delete(ctx, identityID); err != nil {
		return apperrors.Wrapf(err, "[Machine Consume] delete challenge for %s", identityID)
	}

	m.logger.Info().Str("identity", identityID).Msg("password changed")
	return nil
}

// State reports where identityID currently is in the challenge lifecycle.
func (m *Machine) State(ctx context.Context, identityID string) (State, error) {
	m.pendingMu.Lock()
	pending := m.pending[identityID] > 0
	m.pendingMu.Unlock()
	if pending {
		return StatePending, nil
	}

	stored, err := m.repo.Get(ctx, identityID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return StateIdle, nil
	}
	if err != nil {
		return StateIdle, apperrors.Wrapf(err, "[Machine State] load challenge for %s", identityID)
	}
	if m.expired(stored) {
		return StateExpired, nil
	}
	return StateIssued, nil
}

func (m *Machine) expired(c *Challenge) bool {
	return m.nowFunc().Sub(c.IssuedAt) >= m.codec.TTL(token.KindChallenge)
}

func (m *Machine) setPending(identityID string, delta int) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending[identityID] += delta
	if m.pending[identityID] <= 0 {
		delete(m.pending, identityID)
	}
}
