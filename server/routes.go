package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	s.route(http.MethodPost, RouteLogin, s.LoginHandler())
	s.route(http.MethodPost, RouteRefresh, s.RefreshHandler())
	s.route(http.MethodPost, RouteLogout, s.LogoutHandler())

	s.route(http.MethodPost, RouteChallengeStart, s.ChallengeStartHandler())
	s.route(http.MethodPost, RouteChangePassword, s.ChangePasswordHandler())

	s.route(http.MethodGet, RouteMe, s.MeHandler())

	s.route(http.MethodGet, RouteHealth, s.HealthHandler())
	if s.metricsHandler != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metricsHandler)
	}

	s.RegisterRouteFunc("OPTIONS /", s.PreflightHandler())
}

// route registers h behind the API pipeline. Paths outside the public
// allow-list get the gateway stage, so a protected route cannot be registered
// without authentication.
func (s *Server) route(method, path string, h Handler) {
	stages := s.APIStages()
	if !isPublic(path) {
		stages = append(stages, s.Authenticate)
	}
	s.RegisterRouteFunc(method+" "+path, s.Pipeline(path, stages...).Then(h))
}
