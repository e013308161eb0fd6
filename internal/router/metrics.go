package router

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Routed completions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	failoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "router",
			Name:      "failovers_total",
			Help:      "Failover actions taken, by kind",
		},
		[]string{"kind"},
	)

	activeRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fleetd",
			Subsystem: "router",
			Name:      "active_requests",
			Help:      "In-flight requests per provider",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, failoversTotal, activeRequests)
}
