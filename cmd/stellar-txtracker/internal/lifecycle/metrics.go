package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
)

type metrics struct {
	submits           *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	lookups           *prometheus.CounterVec
	confirmation      prometheus.Summary
}

func newMetrics(daemon interfaces.Daemon) *metrics {
	if daemon == nil {
		daemon = interfaces.MakeNoOpDaemon()
	}
	namespace := daemon.MetricsNamespace()
	m := &metrics{
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "submits_total",
			Help: "submit calls, by whether the request was accepted or ignored",
		}, []string{"result"}),
		broadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "broadcast_failures_total",
			Help: "failed broadcasts, by failure kind",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "outcomes_total",
			Help: "finalized transactions, by outcome",
		}, []string{"outcome"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "ledger_lookups_total",
			Help: "ledger lookups of broadcast transactions, by result",
		}, []string{"result"}),
		confirmation: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "confirmation_duration_seconds",
			Help:       "time from broadcast until the transaction was found in the ledger, sliding window = 10m",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}, //nolint:mnd
		}),
	}
	daemon.MetricsRegistry().MustRegister(m.submits, m.broadcastFailures, m.outcomes, m.lookups, m.confirmation)
	return m
}
