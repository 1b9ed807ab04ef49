package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteLogin          = "/login"
	RouteRefresh        = "/refresh"
	RouteLogout         = "/logout"
	RouteChallengeStart = "/challenge/start"
	RouteChangePassword = "/change-password"
	RouteMe             = "/me"

	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// publicRoutes are reachable without an access token. Every other route is
// registered behind the gateway.
var publicRoutes = map[string]struct{}{
	RouteLogin:          {},
	RouteRefresh:        {},
	RouteLogout:         {},
	RouteChallengeStart: {},
	RouteHealth:         {},
	RouteMetrics:        {},
}

func isPublic(path string) bool {
	_, ok := publicRoutes[path]
	return ok
}
