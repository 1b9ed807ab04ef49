package obs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the auth counters.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultExpired  = "expired"
	ResultError    = "error"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	logins     *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	challenges *prometheus.CounterVec
	gateway    *prometheus.CounterVec
	requests   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result", "refresh"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Refresh token reissues by result.",
		}, []string{"result"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_challenges_total",
			Help: "Challenge operations by operation and result.",
		}, []string{"op", "result"}),
		gateway: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gateway_total",
			Help: "Access token checks on protected routes by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(m.logins, m.refreshes, m.challenges, m.gateway, m.requests)
	return m
}

func (m *Metrics) Login(result string, withRefresh bool) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result, strconv.FormatBool(withRefresh)).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Challenge(op, result string) {
	if m == nil {
		return
	}
	m.challenges.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Gateway(result string) {
	if m == nil {
		return
	}
	m.gateway.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
