package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	containersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetd",
			Subsystem: "lifecycle",
			Name:      "containers_running",
			Help:      "Containers currently in the running state",
		},
	)

	containerStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "lifecycle",
			Name:      "container_starts_total",
			Help:      "Containers started (reached running)",
		},
	)

	containerStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "lifecycle",
			Name:      "container_stops_total",
			Help:      "Containers stopped, by reason",
		},
		[]string{"reason"},
	)

	startFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "lifecycle",
			Name:      "start_failures_total",
			Help:      "Container starts that never became ready",
		},
	)
)

func init() {
	prometheus.MustRegister(containersRunning, containerStartsTotal, containerStopsTotal, startFailuresTotal)
}
