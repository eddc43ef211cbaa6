// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ResultSuccess is the result label of a successful operation. Failures are
// labelled with their lower-cased error kind, e.g. "token_expired".
const ResultSuccess = "success"

// AccountsCreated counts successful signups.
var AccountsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "accountd_accounts_created_total",
		Help: "Total number of accounts created",
	},
)

// Logins counts login attempts by result kind.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "accountd_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// ResetRequests counts password reset requests by result kind.
var ResetRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "accountd_reset_requests_total",
		Help: "Total number of password reset requests by result",
	},
	[]string{"result"},
)

// ResetDispatchFailures counts reset emails the notifier failed to accept.
var ResetDispatchFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "accountd_reset_dispatch_failures_total",
		Help: "Total number of reset token notifications that failed to dispatch",
	},
)

// ResetsConsumed counts token consumption attempts by result kind.
var ResetsConsumed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "accountd_reset_consumed_total",
		Help: "Total number of reset token consumptions by result",
	},
	[]string{"result"},
)

// HashDuration observes password hashing and verification time.
var HashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "accountd_password_hash_duration_seconds",
		Help:    "Password hash and verify duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"operation"},
)

// RegisterMetrics registers the account metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AccountsCreated)
	reg.MustRegister(Logins)
	reg.MustRegister(ResetRequests)
	reg.MustRegister(ResetDispatchFailures)
	reg.MustRegister(ResetsConsumed)
	reg.MustRegister(HashDuration)
}

// resultLabel maps an operation error to a counter label.
func resultLabel(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(KindOf(err).String(), "ACCOUNT_"), "RESET_"))
}

func observeHash(operation string, start time.Time) {
	HashDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
