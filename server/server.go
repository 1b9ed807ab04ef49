package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Auth           *auth.AuthorizationService
	Gateway        *auth.Gateway
	Logger         zerolog.Logger
	Metrics        *obs.Metrics
	MetricsHandler http.Handler                // served on RouteMetrics when set
	Health         func(context.Context) error // backing store check for RouteHealth
}

type Server struct {
	env            string
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	auth           *auth.AuthorizationService
	gateway        *auth.Gateway
	logger         zerolog.Logger
	metrics        *obs.Metrics
	metricsHandler http.Handler
	health         func(context.Context) error
	requestTimeout time.Duration
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("[Server New] authorization service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("[Server New] gateway is required")
	}

	s := &Server{
		env:            cfg.GetEnv(),
		mux:            http.NewServeMux(),
		config:         cfg,
		auth:           deps.Auth,
		gateway:        deps.Gateway,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		health:         deps.Health,
		requestTimeout: cfg.GetRequestTimeout(),
	}
	if s.health == nil {
		s.health = func(context.Context) error { return nil }
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msg(fmt.Sprintf("[%-19s] %s", colourMethod(method), path))
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
