package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-auth/users"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var ErrNotAuthenticated = errors.New("not signed in")

type SessionOption func(*SessionContext)

// WithIdleTimeout signs the session out after d without Touch.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *SessionContext) {
		s.idleTimeout = d
	}
}

// WithOnLogout is called after every local sign out, including the ones the
// idle timer or a failed renewal trigger.
func WithOnLogout(fn func()) SessionOption {
	return func(s *SessionContext) {
		s.onLogout = fn
	}
}

func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *SessionContext) {
		s.logger = logger
	}
}

// SessionContext is the signed in state of one user: identity, token pair and
// the idle timer.
type SessionContext struct {
	client      *Resilient
	idle        *IdleTimer
	idleTimeout time.Duration
	onLogout    func()
	logger      zerolog.Logger

	mu       sync.RWMutex
	identity *users.Profile
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Identity *users.Profile `json:"identity,omitempty"`
	Token    *oauth2.Token  `json:"token,omitempty"`
}

func NewSessionContext(client *Resilient, opts ...SessionOption) (*SessionContext, error) {
	if client == nil {
		return nil, errors.New("[NewSessionContext] client is required")
	}

	s := &SessionContext{
		client: client,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.idle = NewIdleTimer(s.idleTimeout, func() {
		s.logger.Info().Msg("session idle, signing out")
		s.Logout()
	})

	client.mu.RLock()
	prev := client.onReauth
	client.mu.RUnlock()
	client.setOnReauthRequired(func() {
		s.Logout()
		if prev != nil {
			prev()
		}
	})
	return s, nil
}

type loginResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	Identity     users.Profile `json:"identity"`
}

// Login signs in and keeps whatever tokens the server returns. Only roles that
// may hold a refresh token get one.
func (s *SessionContext) Login(ctx context.Context, email, password string) (users.Profile, error) {
	var data loginResponse
	_, err := s.client.DoPublic(ctx, Request{
		Method: http.MethodPost,
		Path:   "/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &data)
	if err != nil {
		return users.Profile{}, fmt.Errorf("[SessionContext Login] %w", err)
	}

	s.client.SetToken(&oauth2.Token{AccessToken: data.Token, RefreshToken: data.RefreshToken})
	s.mu.Lock()
	identity := data.Identity
	s.identity = &identity
	s.mu.Unlock()

	s.idle.Start()
	s.logger.Debug().Str("identity", identity.ID).Bool("refresh", data.RefreshToken != "").Msg("signed in")
	return identity, nil
}

// Logout forgets the session locally and cancels the idle timer.
func (s *SessionContext) Logout() {
	s.idle.Cancel()
	s.client.SetToken(nil)

	s.mu.Lock()
	wasSignedIn := s.identity != nil
	s.identity = nil
	s.mu.Unlock()

	if wasSignedIn && s.onLogout != nil {
		s.onLogout()
	}
}

// RefreshSession renews the access token now.
func (s *SessionContext) RefreshSession(ctx context.Context) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := s.client.Refresh(ctx); err != nil {
		return fmt.Errorf("[SessionContext RefreshSession] %w", err)
	}
	s.Touch()
	return nil
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

// StartChallenge re-enters the password of the signed in identity and returns
// the challenge token a password change needs.
func (s *SessionContext) StartChallenge(ctx context.Context, password string) (string, error) {
	identity, ok := s.Identity()
	if !ok {
		return "", ErrNotAuthenticated
	}

	var data challengeResponse
	_, err := s.client.DoPublic(ctx, Request{
		Method: http.MethodPost,
		Path:   "/challenge/start",
		Body:   map[string]string{"email": identity.Email, "password": password},
	}, &data)
	if err != nil {
		return "", fmt.Errorf("[SessionContext StartChallenge] %w", err)
	}
	s.Touch()
	return data.Challenge, nil
}

func (s *SessionContext) ChangePassword(ctx context.Context, otp, newPassword string) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	_, err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/change-password",
		Body:   map[string]string{"otp": otp, "password": newPassword},
	}, nil)
	if err != nil {
		return fmt.Errorf("[SessionContext ChangePassword] %w", err)
	}
	s.Touch()
	return nil
}

// Me fetches the identity the server sees for the held access token.
func (s *SessionContext) Me(ctx context.Context) (users.Profile, error) {
	var me users.Profile
	if _, err := s.client.Do(ctx, Request{Method: http.MethodGet, Path: "/me"}, &me); err != nil {
		return users.Profile{}, fmt.Errorf("[SessionContext Me] %w", err)
	}

	s.mu.Lock()
	if s.identity != nil {
		s.identity = &me
	}
	s.mu.Unlock()
	s.Touch()
	return me, nil
}

func (s *SessionContext) Identity() (users.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return users.Profile{}, false
	}
	return *s.identity, true
}

func (s *SessionContext) IsAuthenticated() bool {
	_, ok := s.Identity()
	return ok
}

func (s *SessionContext) HasRole(role users.Role) bool {
	identity, ok := s.Identity()
	return ok && identity.Role == role
}

// Touch records user activity.
func (s *SessionContext) Touch() {
	if s.IsAuthenticated() {
		s.idle.Reset()
	}
}

// Close stops the idle timer. The session state is kept.
func (s *SessionContext) Close() {
	s.idle.Stop()
}

func (s *SessionContext) Snapshot() Snapshot {
	snap := Snapshot{Token: s.client.Token()}
	if identity, ok := s.Identity(); ok {
		snap.Identity = &identity
	}
	return snap
}

// Restore adopts a previously saved session. A snapshot without an identity or
// access token leaves the session signed out.
func (s *SessionContext) Restore(snap Snapshot) {
	if snap.Identity == nil || snap.Token == nil || snap.Token.AccessToken == "" {
		s.Logout()
		return
	}
	s.client.SetToken(snap.Token)
	s.mu.Lock()
	identity := *snap.Identity
	s.identity = &identity
	s.mu.Unlock()
	s.idle.Start()
}
