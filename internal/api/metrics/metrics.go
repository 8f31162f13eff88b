// Package metrics defines and registers the Prometheus metrics of the
// member-system core. It is the single source of truth for metric names,
// labels, and help strings; promauto registers everything with the default
// registry at package load, so the routing layer only has to expose it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "members"

// RegistrationsTotal counts successfully created accounts.
var RegistrationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of successfully registered users.",
	},
)

// LoginsTotal counts authentication attempts by outcome.
// Label:
//   - result: "success", "failure", "inactive", or "throttled"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of authentication attempts, by result.",
	},
	[]string{"result"},
)

// TokenValidationsTotal counts token resolutions performed by the access
// guard.
// Label:
//   - result: "ok", "expired", "invalid_signature", or "malformed"
var TokenValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_validations_total",
		Help:      "Total number of session token validations, by result.",
	},
	[]string{"result"},
)

// PasswordHashDuration measures the cost of a single password hash.
var PasswordHashDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_hash_duration_seconds",
		Help:      "Duration of password hash computations.",
		Buckets:   prometheus.DefBuckets,
	},
)
