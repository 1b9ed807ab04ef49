package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// StatusTokenExpired is what the server answers when the access token is
	// past its lifetime.
	StatusTokenExpired = 498

	tokenCookieName       = "token"
	defaultRefreshTimeout = 10 * time.Second
	refreshPath           = "/refresh"
)

var (
	ErrReauthRequired      = errors.New("session expired, please login again")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingRefreshToken = errors.New("missing refresh token, please login again")
)

// Request is one API call. A nil Body with an empty Method is a GET, a non nil
// Body with an empty Method is a POST.
type Request struct {
	Method string
	Path   string
	Body   any
}

func (r Request) method() string {
	switch {
	case r.Method != "":
		return r.Method
	case r.Body != nil:
		return http.MethodPost
	default:
		return http.MethodGet
	}
}

type ResilientOption func(*Resilient)

func WithHTTPClient(c *http.Client) ResilientOption {
	return func(r *Resilient) {
		r.httpClient = c
	}
}

// WithRefreshTimeout bounds each refresh call. A refresh that times out is a
// failed refresh.
func WithRefreshTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.refreshTimeout = d
	}
}

// WithOnReauthRequired is called once when the session can no longer be
// renewed and the user has to sign in again.
func WithOnReauthRequired(fn func()) ResilientOption {
	return func(r *Resilient) {
		r.onReauth = fn
	}
}

func WithLogger(logger zerolog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

// Resilient is an API client that renews an expired access token once with
// the held refresh token and retries the call once.
type Resilient struct {
	baseURL        *url.URL
	httpClient     *http.Client
	refreshTimeout time.Duration
	logger         zerolog.Logger

	mu          sync.RWMutex
	token       *oauth2.Token
	onReauth    func()
	reauthFired bool

	refreshes singleflight.Group
}

func NewResilient(baseURL string, opts ...ResilientOption) (*Resilient, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[NewResilient] invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[NewResilient] base url %q needs a scheme and host", baseURL)
	}

	r := &Resilient{
		baseURL:        u,
		refreshTimeout: defaultRefreshTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return r, nil
}

// Token returns a copy of the held token pair, or nil when signed out.
func (r *Resilient) Token() *oauth2.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.token == nil {
		return nil
	}
	t := *r.token
	return &t
}

// SetToken replaces the held token pair. A nil token signs the client out.
func (r *Resilient) SetToken(t *oauth2.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == nil {
		r.token = nil
		return
	}
	held := *t
	if held.TokenType == "" {
		held.TokenType = "Bearer"
	}
	r.token = &held
	r.reauthFired = false
}

func (r *Resilient) setOnReauthRequired(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReauth = fn
}

func (r *Resilient) accessToken() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.token == nil {
		return ""
	}
	return r.token.AccessToken
}

// Do sends an authenticated request and decodes the data member into out.
func (r *Resilient) Do(ctx context.Context, req Request, out any) (*Envelope, error) {
	return r.do(ctx, req, out, false)
}

// DoPublic sends a request without credentials and without any renewal.
func (r *Resilient) DoPublic(ctx context.Context, req Request, out any) (*Envelope, error) {
	status, body, err := r.send(ctx, req, "")
	if err != nil {
		return nil, err
	}
	return r.decode(status, body, out)
}

func (r *Resilient) do(ctx context.Context, req Request, out any, retrying bool) (*Envelope, error) {
	sent := r.accessToken()
	status, body, err := r.send(ctx, req, sent)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusTokenExpired:
		if retrying {
			r.reauthRequired()
			return nil, ErrReauthRequired
		}
		if err := r.renew(ctx, sent); err != nil {
			r.logger.Debug().Err(err).Str("path", req.Path).Msg("token refresh failed")
			r.reauthRequired()
			return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		return r.do(ctx, req, out, true)

	case http.StatusUnauthorized:
		env, _ := decodeEnvelope(status, body)
		if env != nil && !rejectsSession(env.Code) {
			// A failed challenge or refresh is a 401 about the request, the
			// session itself is still good.
			return r.decode(status, body, out)
		}
		r.reauthRequired()
		if retrying {
			return nil, ErrReauthRequired
		}
		if env != nil && env.Message != "" {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, &APIError{Status: status, Message: env.Message, Code: env.Code})
		}
		return nil, ErrUnauthorized
	}
	return r.decode(status, body, out)
}

// rejectsSession reports whether a 401 code means the access token itself was
// refused by the gateway.
func rejectsSession(code string) bool {
	switch code {
	case "", "missing_token", "invalid_token":
		return true
	default:
		return false
	}
}

func (r *Resilient) decode(status int, body []byte, out any) (*Envelope, error) {
	env, err := decodeEnvelope(status, body)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return env, &APIError{Status: status, Message: env.Message, Code: env.Code}
	}
	if err := env.DecodeData(out); err != nil {
		return env, err
	}
	return env, nil
}

// Refresh renews the access token with the held refresh token and adopts the
// rotated refresh token when the server returns one.
func (r *Resilient) Refresh(ctx context.Context) error {
	return r.renew(ctx, "")
}

// renew runs at most one refresh at a time. Callers that hit an expiry while
// a refresh is in flight share its outcome. When stale is set and another
// caller already replaced that access token there is nothing to do.
func (r *Resilient) renew(ctx context.Context, stale string) error {
	r.mu.RLock()
	tok := r.token
	r.mu.RUnlock()
	if tok == nil || tok.RefreshToken == "" {
		return ErrMissingRefreshToken
	}
	if stale != "" && tok.AccessToken != stale {
		return nil
	}

	ch := r.refreshes.DoChan("refresh", func() (any, error) {
		// Shared by every waiter, so it must outlive the caller that started it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.refreshTimeout)
		defer cancel()
		return nil, r.refresh(rctx, tok.RefreshToken)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (r *Resilient) refresh(ctx context.Context, refreshToken string) error {
	var data refreshResponse
	_, err := r.DoPublic(ctx, Request{
		Method: http.MethodPost,
		Path:   refreshPath,
		Body:   map[string]string{"refreshToken": refreshToken},
	}, &data)
	if err != nil {
		return fmt.Errorf("[Resilient refresh] %w", err)
	}
	if data.Token == "" {
		return errors.New("[Resilient refresh] response carried no access token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token == nil || r.token.RefreshToken != refreshToken {
		// Signed out or replaced by a login while the refresh was running.
		return errors.New("[Resilient refresh] session changed during refresh")
	}
	next := *r.token
	next.AccessToken = data.Token
	if data.RefreshToken != "" {
		next.RefreshToken = data.RefreshToken
	}
	r.token = &next
	r.logger.Debug().Msg("access token refreshed")
	return nil
}

// reauthRequired drops the held tokens and notifies the owner. It fires once
// until a new token pair is set.
func (r *Resilient) reauthRequired() {
	r.mu.Lock()
	if r.reauthFired {
		r.mu.Unlock()
		return
	}
	r.reauthFired = true
	r.token = nil
	fn := r.onReauth
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (r *Resilient) send(ctx context.Context, req Request, accessToken string) (int, []byte, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("[Resilient send] encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := r.baseURL.JoinPath(req.Path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("[Resilient send] %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(httpReq)
		httpReq.AddCookie(&http.Cookie{Name: tokenCookieName, Value: accessToken})
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("[Resilient send] %s %s: %w", httpReq.Method, req.Path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("[Resilient send] read body: %w", err)
	}
	return resp.StatusCode, b, nil
}
