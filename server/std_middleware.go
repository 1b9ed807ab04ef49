package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-auth/auth"
)

const maxBodyBytes = 1 << 20

// APIStages are the common stages every API route starts with.
func (s *Server) APIStages() []Stage {
	return []Stage{
		s.FrameSecurity,
		s.Cors,
		s.LimitBody,
	}
}

func (s *Server) FrameSecurity(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	// Prevent embedding on other sites
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'self'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	return r, nil
}

func (s *Server) LimitBody(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	return r, nil
}

// Cors sets the response headers for cross-origin requests from allowed
// origins. Requests without an Origin header are same-origin and untouched.
func (s *Server) Cors(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return r, nil
	}

	allowedOrigins := s.config.GetAllowedOrigins()
	switch {
	case allowedOrigins.IsAllowedOrigin(origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Add("Vary", "Origin")
	case allowedOrigins.IsAllowedOrigin("*"):
		// Don't set Allow-Credentials with wildcard
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	return r, nil
}

// PreflightHandler answers CORS preflight requests for every path.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Cors(w, r); err == nil && w.Header().Get("Access-Control-Allow-Origin") != "" {
			w.Header().Set("Access-Control-Allow-Methods", s.config.GetAllowedMethods())
			w.Header().Set("Access-Control-Allow-Headers", s.config.GetAllowedHeaders())
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		// Disallowed origins get no CORS headers, the browser blocks the request
		w.WriteHeader(http.StatusNoContent)
	}
}

// Authenticate verifies the access token and attaches the identity to the
// request context.
func (s *Server) Authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	identity, err := s.gateway.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		return nil, err
	}
	return r.WithContext(auth.WithIdentity(r.Context(), identity)), nil
}
