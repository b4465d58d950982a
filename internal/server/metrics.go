package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	verifyTotal *prometheus.CounterVec
	settleTotal *prometheus.CounterVec
}

var defaultMetrics = &metrics{
	verifyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_verify_requests_total",
		Help: "Verification requests by outcome (valid, invalid, error).",
	}, []string{"outcome"}),
	settleTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_settle_requests_total",
		Help: "Settlement requests by outcome (success, failure, error).",
	}, []string{"outcome"}),
}

// newMetrics returns the process-wide counters. Collectors register with
// the default registry once; every Server shares them.
func newMetrics() *metrics {
	return defaultMetrics
}
