// Package metrics holds the Prometheus collectors of one participant process.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shmcounter"

// Metrics holds all Prometheus metrics of a participant.
type Metrics struct {
	Registry *prometheus.Registry

	Iterations *prometheus.CounterVec
	Increments *prometheus.CounterVec
	CoinFlips  *prometheus.CounterVec
	LockWait   *prometheus.HistogramVec
	LockHold   *prometheus.HistogramVec
	Observed   *prometheus.GaugeVec
	Startup    *prometheus.CounterVec
	Teardown   *prometheus.CounterVec
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	holdBuckets := prometheus.ExponentialBuckets(0.00005, 2, 16)
	return &Metrics{
		Registry: reg,
		Iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Critical sections entered, by outcome.",
		}, []string{"role", "outcome"}),
		Increments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "increments_total",
			Help:      "Increments written to the shared counter.",
		}, []string{"role"}),
		CoinFlips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coin_flips_total",
			Help:      "Coin flips drawn while holding the lock.",
		}, []string{"role", "side"}),
		LockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent blocked acquiring the lock.",
			Buckets:   holdBuckets,
		}, []string{"role"}),
		LockHold: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_hold_seconds",
			Help:      "Time the lock was held per critical section.",
			Buckets:   holdBuckets,
		}, []string{"role"}),
		Observed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observed_value",
			Help:      "Counter value seen in the last critical section.",
		}, []string{"role"}),
		Startup: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "startup_attempts_total",
			Help:      "Attempts to create or open the named resources, by outcome (ok, not_found, error).",
		}, []string{"role", "result"}),
		Teardown: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_errors_total",
			Help:      "Non-fatal failures while closing or destroying resources.",
		}, []string{"role"}),
	}
}

// ObserveDuration records d in seconds on the histogram for role.
func ObserveDuration(h *prometheus.HistogramVec, role string, d time.Duration) {
	h.WithLabelValues(role).Observe(d.Seconds())
}

// WriteTextfile dumps every metric into path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
