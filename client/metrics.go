package client

import (
	lib "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricsRegistry collects instrumentation for every simulation client in
// the process.
var metricsRegistry = lib.NewRegistry()

var (
	commandsSent = lib.NewCounterVec(lib.CounterOpts{
		Namespace: "cargonetsim",
		Subsystem: "client",
		Name:      "commands_sent_total",
		Help:      "Commands successfully published to the broker.",
	}, []string{"client_type"})

	commandsFailed = lib.NewCounterVec(lib.CounterOpts{
		Namespace: "cargonetsim",
		Subsystem: "client",
		Name:      "commands_failed_total",
		Help:      "Commands that could not be published after retries.",
	}, []string{"client_type"})

	connectionState = lib.NewGaugeVec(lib.GaugeOpts{
		Namespace: "cargonetsim",
		Subsystem: "client",
		Name:      "connection_state",
		Help:      "Current connection state per client type (0=disconnected, 1=connecting, 2=connected, 3=disconnecting).",
	}, []string{"client_type"})
)

func init() {
	metricsRegistry.MustRegister(commandsSent, commandsFailed, connectionState)
}

// GatherMetrics collects the current client instrumentation on a best-effort
// manner.
func GatherMetrics() ([]*dto.MetricFamily, error) {
	return metricsRegistry.Gather()
}
