// Package observability declares the Prometheus metrics emitted by the
// authentication pipeline. Collectors are registered with the default
// registry on package init.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// DecisionsTotal counts policy decisions by outcome (allow, anonymous,
	// deny) and denial reason.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_decisions_total",
			Help: "Authentication decisions",
		},
		[]string{"outcome", "reason"},
	)

	// JWKSFetchesTotal counts upstream key set fetch attempts by result.
	JWKSFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_jwks_fetches_total",
			Help: "Upstream JWKS fetches",
		},
		[]string{"result"},
	)

	// SessionLookupsTotal counts session store reads by result (hit, miss,
	// error).
	SessionLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_session_lookups_total",
			Help: "Session store lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(DecisionsTotal, JWKSFetchesTotal, SessionLookupsTotal)
}
