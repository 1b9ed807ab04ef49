package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/challenge"
	fakechallengerepo "github.com/jrsteele09/go-session-auth/challenge/repofakes"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/server"
	fakesessionrepo "github.com/jrsteele09/go-session-auth/sessions/repofakes"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	managerEmail = "manager@example.com"
	staffEmail   = "staff@example.com"
	testPassword = "Secret12!"
	appOrigin    = "http://app.local"
)

type testFixture struct {
	mu      sync.Mutex
	now     time.Time
	cfg     config.Config
	users   *fakeuserrepo.FakeUserRepo
	server  *server.Server
	health  error
	manager *users.Identity
	staff   *users.Identity
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("JWT_ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("JWT_ACCESS_TOKEN_EXPIRATION", "15m")
	t.Setenv("JWT_REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("JWT_REFRESH_TOKEN_EXPIRATION", "24h")
	t.Setenv("JWT_CHALLENGE_TOKEN_SECRET", "challenge-secret")
	t.Setenv("JWT_CHALLENGE_TOKEN_EXPIRATION", "5m")
	t.Setenv("AUTH_PASSWORD_HASH_ROUNDS", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", appOrigin)

	cfg, err := config.Load("")
	require.NoError(t, err)

	f := &testFixture{
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		cfg:   cfg,
		users: fakeuserrepo.NewFakeUserRepo(),
	}
	ctx := context.Background()

	codec, err := token.NewCodec(token.KindConfigsFrom(cfg), token.WithNowFunc(f.clock))
	require.NoError(t, err)
	hasher, err := users.NewHasher(cfg.GetPasswordHashRounds())
	require.NoError(t, err)

	require.NoError(t, server.SeedIdentities(ctx, f.users, hasher, []config.SeedIdentity{
		{Email: managerEmail, Name: "Mia", Role: "MANAGER", Password: testPassword},
		{Email: staffEmail, Name: "Sam", Role: "STAFF", Password: testPassword},
	}, zerolog.Nop()))
	f.manager, err = f.users.GetByEmail(ctx, managerEmail)
	require.NoError(t, err)
	f.staff, err = f.users.GetByEmail(ctx, staffEmail)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	machine, err := challenge.NewMachine(fakechallengerepo.NewFakeChallengeRepo(), f.users, codec, hasher,
		challenge.WithNowFunc(f.clock), challenge.WithMetrics(metrics))
	require.NoError(t, err)
	service, err := auth.NewAuthorizationService(
		auth.Repos{Identities: f.users, Sessions: fakesessionrepo.NewFakeSessionRepo()},
		codec, machine, hasher, auth.WithNowTime(f.clock), auth.WithMetrics(metrics),
	)
	require.NoError(t, err)
	gateway, err := auth.NewGateway(codec, f.users, auth.WithGatewayMetrics(metrics))
	require.NoError(t, err)

	f.server, err = server.New(cfg, server.Deps{
		Auth:           service,
		Gateway:        gateway,
		Logger:         zerolog.Nop(),
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:         func(context.Context) error { return f.health },
	})
	require.NoError(t, err)
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (f *testFixture) do(t *testing.T, method, path string, body any, accessToken string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

type loginData struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	Identity     users.Profile `json:"identity"`
}

func (f *testFixture) login(t *testing.T, email string) loginData {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": email, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	var data loginData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func TestLogin(t *testing.T) {
	t.Run("staff", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": staffEmail, "password": testPassword}, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var data loginData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.NotEmpty(t, data.Token)
		require.Empty(t, data.RefreshToken)
		require.Equal(t, users.RoleStaff, data.Identity.Role)
		require.NotContains(t, string(env.Data), "passwordHash")

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "token", cookies[0].Name)
		require.Equal(t, data.Token, cookies[0].Value)
		require.True(t, cookies[0].HttpOnly)
	})

	t.Run("manager", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t, managerEmail)
		require.NotEmpty(t, data.Token)
		require.NotEmpty(t, data.RefreshToken)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": staffEmail}, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.False(t, env.Success)
		require.Contains(t, env.Message, "password")
	})

	t.Run("malformed body", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": staffEmail, "password": "nope"}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid email or password", env.Message)
		require.Equal(t, "invalid_credentials", env.Code)
	})
}

func TestGatewayOnProtectedRoutes(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "missing_token", env.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_token", env.Code)
	})

	t.Run("bearer", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t, staffEmail)
		rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, data.Token)
		require.Equal(t, http.StatusOK, rec.Code)

		var me users.Profile
		require.NoError(t, json.Unmarshal(env.Data, &me))
		require.Equal(t, f.staff.Profile(), me)
	})

	t.Run("cookie uses first field", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t, staffEmail)
		req := httptest.NewRequest(http.MethodGet, server.RouteMe, nil)
		req.Header.Set("Cookie", "token="+data.Token+" trailing")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired is 498", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t, staffEmail)
		f.advance(16 * time.Minute)

		rec, env := f.do(t, http.MethodGet, server.RouteMe, nil, data.Token)
		require.Equal(t, server.StatusTokenExpired, rec.Code)
		require.Equal(t, "token_expired", env.Code)

		rec, _ = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": "x", "password": "y"}, data.Token)
		require.Equal(t, server.StatusTokenExpired, rec.Code)
	})

	t.Run("deleted identity", func(t *testing.T) {
		f := setupTestFixture(t)
		data := f.login(t, staffEmail)
		require.NoError(t, f.users.Delete(context.Background(), f.staff.ID))
		rec, _ := f.do(t, http.MethodGet, server.RouteMe, nil, data.Token)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRefresh(t *testing.T) {
	f := setupTestFixture(t)
	data := f.login(t, managerEmail)

	rec, env := f.do(t, http.MethodPost, server.RouteRefresh, map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)

	rec, env = f.do(t, http.MethodPost, server.RouteRefresh, map[string]string{"refreshToken": data.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed loginData
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	require.NotEmpty(t, refreshed.Token)
	require.NotEmpty(t, refreshed.RefreshToken)

	rec, env = f.do(t, http.MethodPost, server.RouteRefresh, map[string]string{"refreshToken": data.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Refresh token mismatch", env.Message)

	rec, _ = f.do(t, http.MethodGet, server.RouteMe, nil, refreshed.Token)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	start := func(t *testing.T, f *testFixture, password string) (int, string) {
		t.Helper()
		rec, env := f.do(t, http.MethodPost, server.RouteChallengeStart, map[string]string{"email": staffEmail, "password": password}, "")
		var data struct {
			Challenge string `json:"challenge"`
		}
		if env.Data != nil {
			require.NoError(t, json.Unmarshal(env.Data, &data))
		}
		return rec.Code, data.Challenge
	}

	t.Run("full flow", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token

		code, otp := start(t, f, testPassword)
		require.Equal(t, http.StatusOK, code)
		require.NotEmpty(t, otp)

		rec, env := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": otp, "password": "Brand9new!"}, access)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Password changed successfully", env.Message)
		require.JSONEq(t, `{}`, string(env.Data))

		rec, env = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": otp, "password": "Other9new!"}, access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "You have not started the challenge", env.Message)

		rec, _ = f.do(t, http.MethodPost, server.RouteLogin, map[string]string{"email": staffEmail, "password": "Brand9new!"}, "")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad password on start", func(t *testing.T) {
		f := setupTestFixture(t)
		code, _ := start(t, f, "wrong")
		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("not started", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token
		rec, env := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": "x", "password": "Brand9new!"}, access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "challenge_not_started", env.Code)
	})

	t.Run("invalid otp", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token
		_, _ = start(t, f, testPassword)
		rec, env := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": "garbage", "password": "Brand9new!"}, access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid OTP code", env.Message)
	})

	t.Run("longer than bcrypt accepts", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token
		_, otp := start(t, f, testPassword)
		rec, env := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": otp, "password": strings.Repeat("Ab1!", 25)}, access)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_request", env.Code)

		rec, _ = f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": otp, "password": "Brand9new!"}, access)
		require.Equal(t, http.StatusOK, rec.Code, "the challenge survives a rejected body")
	})

	t.Run("same as old", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token
		_, otp := start(t, f, testPassword)
		rec, env := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": otp, "password": testPassword}, access)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "same_as_old", env.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.login(t, staffEmail).Token
		rec, _ := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"password": "Brand9new!"}, access)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires access token", func(t *testing.T) {
		f := setupTestFixture(t)
		rec, _ := f.do(t, http.MethodPost, server.RouteChangePassword, map[string]string{"otp": "x", "password": "y"}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogoutClearsCookie(t *testing.T) {
	f := setupTestFixture(t)
	rec, env := f.do(t, http.MethodPost, server.RouteLogout, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "token", cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t)

	rec, env := f.do(t, http.MethodGet, server.RouteHealth, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	f.health = errors.New("db down")
	rec, env = f.do(t, http.MethodGet, server.RouteHealth, nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, env.Success)

	f.login(t, staffEmail)
	req := httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil)
	mrec := httptest.NewRecorder()
	f.server.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	require.Contains(t, mrec.Body.String(), "auth_logins_total")
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("preflight allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteLogin, nil)
		req.Header.Set("Origin", appOrigin)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("preflight other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteLogin, nil)
		req.Header.Set("Origin", "http://evil.local")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("actual request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, server.RouteHealth, nil)
		req.Header.Set("Origin", appOrigin)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestPipeline(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("stage error short-circuits", func(t *testing.T) {
		var handlerCalled, secondStageCalled bool
		stop := func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
			return nil, errors.New("stage failed")
		}
		second := func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
			secondStageCalled = true
			return r, nil
		}
		h := f.server.Pipeline("/test", stop, second).Then(func(r *http.Request) (*server.Result, error) {
			handlerCalled = true
			return server.OK(nil), nil
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.False(t, secondStageCalled)
		require.False(t, handlerCalled)
		require.NotContains(t, rec.Body.String(), "stage failed")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		h := f.server.Pipeline("/boom").Then(func(r *http.Request) (*server.Result, error) {
			panic("boom")
		})
		rec := httptest.NewRecorder()
		require.NotPanics(t, func() { h(rec, httptest.NewRequest(http.MethodGet, "/boom", nil)) })
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.False(t, env.Success)
	})

	t.Run("protected routes are registered behind the gateway", func(t *testing.T) {
		for _, route := range f.server.Routes() {
			if strings.HasSuffix(route, server.RouteMe) || strings.HasSuffix(route, server.RouteChangePassword) {
				_, path, _ := strings.Cut(route, " ")
				method, _, _ := strings.Cut(route, " ")
				rec, _ := f.do(t, method, path, map[string]string{}, "")
				require.Equal(t, http.StatusUnauthorized, rec.Code, route)
			}
		}
	})
}
