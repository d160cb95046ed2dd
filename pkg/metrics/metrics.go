package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "realmsync", Name: "auth_requests_total", Help: "Auth endpoint calls by request kind and outcome."},
		[]string{"kind", "outcome"},
	)
	RefreshScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "realmsync", Name: "refresh_scheduled_total", Help: "Number of access token refresh timers installed."},
	)
	RefreshFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "realmsync", Name: "refresh_fired_total", Help: "Refresh timer callbacks by result."},
		[]string{"result"},
	)
	RefreshTimersPending = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "realmsync", Name: "refresh_timers_pending", Help: "Refresh timers currently pending."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "realmsync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "realmsync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthRequests)
	reg.MustRegister(RefreshScheduled)
	reg.MustRegister(RefreshFired)
	reg.MustRegister(RefreshTimersPending)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
