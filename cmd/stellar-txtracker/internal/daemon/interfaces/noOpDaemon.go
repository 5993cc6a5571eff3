package interfaces

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NoOpDaemon is a dummy daemon implementation, supporting the Daemon interface.
// Used only in testing.
type NoOpDaemon struct {
	metricsNamespace string
}

func MakeNoOpDaemon() *NoOpDaemon {
	return &NoOpDaemon{
		metricsNamespace: PrometheusNamespace,
	}
}

func (d *NoOpDaemon) MetricsRegistry() *prometheus.Registry {
	return prometheus.NewRegistry() // so that you can register metrics many times
}

func (d *NoOpDaemon) MetricsNamespace() string {
	return d.metricsNamespace
}
