package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

func (s *Server) LoginHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		var req loginRequest
		if err := decodeRequest(r, &req); err != nil {
			return nil, err
		}

		res, err := s.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			return nil, err
		}
		return &Result{
			Status: http.StatusOK,
			Data: loginResponse{
				Token:        res.AccessToken,
				RefreshToken: res.RefreshToken,
				Identity:     res.Identity,
			},
			Cookies: []*http.Cookie{s.tokenCookie(r, res.AccessToken, 0)},
		}, nil
	}
}

func (s *Server) RefreshHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		var req refreshRequest
		if err := decodeRequest(r, &req); err != nil {
			return nil, err
		}

		res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			return nil, err
		}
		return &Result{
			Status:  http.StatusOK,
			Data:    refreshResponse{Token: res.AccessToken, RefreshToken: res.RefreshToken},
			Cookies: []*http.Cookie{s.tokenCookie(r, res.AccessToken, 0)},
		}, nil
	}
}

// LogoutHandler only drops the browser cookie. Tokens stay valid until they
// expire.
func (s *Server) LogoutHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		return &Result{
			Status:  http.StatusOK,
			Message: "Logged out",
			Cookies: []*http.Cookie{s.clearTokenCookie(r)},
		}, nil
	}
}

func (s *Server) ChallengeStartHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		var req loginRequest
		if err := decodeRequest(r, &req); err != nil {
			return nil, err
		}

		challenge, err := s.auth.StartChallenge(r.Context(), req.Email, req.Password)
		if errors.Is(err, apperrors.ErrMismatch) {
			return nil, apperrors.ErrInvalidCredentials
		}
		if err != nil {
			return nil, err
		}
		return OK(challengeResponse{Challenge: challenge}), nil
	}
}

func (s *Server) ChangePasswordHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			return nil, apperrors.ErrMissingToken
		}

		var req changePasswordRequest
		if err := decodeRequest(r, &req); err != nil {
			return nil, err
		}

		if err := s.auth.ChangePassword(r.Context(), identity.ID, req.OTP, req.Password); err != nil {
			return nil, err
		}
		res := OK(struct{}{})
		res.Message = "Password changed successfully"
		return res, nil
	}
}

func (s *Server) MeHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			return nil, apperrors.ErrMissingToken
		}
		return OK(identity), nil
	}
}

func (s *Server) HealthHandler() Handler {
	return func(r *http.Request) (*Result, error) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			return &Result{Status: http.StatusServiceUnavailable, Message: "unhealthy"}, nil
		}
		return &Result{Status: http.StatusOK, Message: "ok"}, nil
	}
}
