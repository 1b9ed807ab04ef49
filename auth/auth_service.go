package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/jrsteele09/go-session-auth/challenge"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("session-auth/auth")

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Identities users.Repo    // Identity records, password hash is the only field written
	Sessions   sessions.Repo // Current refresh token per identity
}

// LoginResult is returned on a successful login. RefreshToken is empty for
// roles that may not hold one.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Identity     users.Profile
}

// RefreshResult carries the reissued access token and the rotated refresh
// token that replaces the one presented.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// AuthorizationService implements login, refresh and the step-up password
// change on top of the codec, stores and challenge machine.
type AuthorizationService struct {
	repos      Repos
	codec      *token.Codec
	challenges *challenge.Machine
	hasher     users.Hasher
	locks      *utils.KeyedMutex
	nowTime    func() time.Time
	logger     zerolog.Logger
	metrics    *obs.Metrics
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.logger = logger
	}
}

func WithMetrics(metrics *obs.Metrics) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = metrics
	}
}

func NewAuthorizationService(
	repos Repos,
	codec *token.Codec,
	challenges *challenge.Machine,
	hasher users.Hasher,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Identities == nil {
		return nil, errors.New("[NewAuthorizationService] Identities repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewAuthorizationService] codec is required")
	}
	if challenges == nil {
		return nil, errors.New("[NewAuthorizationService] challenge machine is required")
	}

	as := &AuthorizationService{
		repos:      repos,
		codec:      codec,
		challenges: challenges,
		hasher:     hasher,
		locks:      utils.NewKeyedMutex(),
		nowTime:    time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// Login checks credentials and issues an access token. Identities whose role
// may hold a refresh token also get one, recorded as their current Session.
func (as *AuthorizationService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.Login")
	defer span.End()

	identity, err := as.checkCredentials(ctx, email, password)
	if err != nil {
		as.metrics.Login(resultFor(err), false)
		return nil, err
	}

	profile := identity.Profile()
	access, err := as.codec.Issue(token.KindAccess, token.AccessClaims(profile))
	if err != nil {
		as.metrics.Login(obs.ResultError, false)
		return nil, errors.Wrap(err, "[Login] issue access token")
	}

	result := &LoginResult{AccessToken: access, Identity: profile}
	if identity.Role.CanHoldRefreshToken() {
		unlock := as.locks.Lock(identity.ID)
		result.RefreshToken, err = as.rotateRefreshToken(ctx, profile)
		unlock()
		if err != nil {
			as.metrics.Login(obs.ResultError, true)
			return nil, errors.Wrap(err, "[Login] issue refresh token")
		}
	}

	as.metrics.Login(obs.ResultOK, result.RefreshToken != "")
	as.logger.Info().Str("identity", identity.ID).Str("role", identity.Role.String()).Msg("login")
	return result, nil
}

// Refresh exchanges the identity's current refresh token for a new access
// token. The refresh token is rotated, so the presented one stops working.
func (as *AuthorizationService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.Refresh")
	defer span.End()

	result, err := as.refresh(ctx, refreshToken)
	as.metrics.Refresh(resultFor(err))
	return result, err
}

func (as *AuthorizationService) refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrMissingRefreshToken
	}

	claims, err := as.codec.Verify(token.KindRefresh, refreshToken)
	if errors.Is(err, token.ErrExpired) || errors.Is(err, token.ErrInvalidSignature) {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	identity, err := as.repos.Identities.GetByID(ctx, claims.Subject)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] identity lookup")
	}
	if users.NormaliseEmail(identity.Email) != users.NormaliseEmail(claims.Email) || !identity.Role.CanHoldRefreshToken() {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	unlock := as.locks.Lock(identity.ID)
	defer unlock()

	stored, err := as.repos.Sessions.Get(ctx, identity.ID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrRefreshTokenMismatch
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] session lookup")
	}
	if subtle.ConstantTimeCompare([]byte(stored.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, apperrors.ErrRefreshTokenMismatch
	}

	profile := identity.Profile()
	access, err := as.codec.Issue(token.KindAccess, token.AccessClaims(profile))
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] issue access token")
	}
	rotated, err := as.rotateRefreshToken(ctx, profile)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] rotate refresh token")
	}
	return &RefreshResult{AccessToken: access, RefreshToken: rotated}, nil
}

// StartChallenge re-checks the password of the identity behind email and
// issues a challenge token for a following ChangePassword.
func (as *AuthorizationService) StartChallenge(ctx context.Context, email, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "AuthorizationService.StartChallenge")
	defer span.End()

	identity, err := as.repos.Identities.GetByEmail(ctx, email)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", errors.Wrap(err, "[StartChallenge] identity lookup")
	}
	return as.challenges.Start(ctx, identity, password)
}

// ChangePassword redeems the challenge token for identityID and sets the new
// password.
func (as *AuthorizationService) ChangePassword(ctx context.Context, identityID, challengeToken, newPassword string) error {
	ctx, span := tracer.Start(ctx, "AuthorizationService.ChangePassword")
	defer span.End()

	return as.challenges.Consume(ctx, identityID, challengeToken, newPassword)
}

func (as *AuthorizationService) checkCredentials(ctx context.Context, email, password string) (*users.Identity, error) {
	identity, err := as.repos.Identities.GetByEmail(ctx, email)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "[checkCredentials] identity lookup")
	}
	if !as.hasher.CheckPasswordHash(password, identity.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return identity, nil
}

// rotateRefreshToken issues a refresh token and records it as the identity's
// only valid one. Callers hold the identity lock.
func (as *AuthorizationService) rotateRefreshToken(ctx context.Context, profile users.Profile) (string, error) {
	refresh, err := as.codec.Issue(token.KindRefresh, token.RefreshClaims(profile))
	if err != nil {
		return "", err
	}
	err = as.repos.Sessions.Upsert(ctx, &sessions.Session{
		IdentityID:   profile.ID,
		RefreshToken: refresh,
		IssuedAt:     as.nowTime(),
	})
	if err != nil {
		return "", err
	}
	return refresh, nil
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return obs.ResultOK
	case apperrors.KindOf(err) == apperrors.KindInternal:
		return obs.ResultError
	default:
		return obs.ResultRejected
	}
}
