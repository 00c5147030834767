package aggregate

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsFolded       prometheus.Counter
	eventsDropped      *prometheus.CounterVec
	orderingViolations prometheus.Counter
)

// InitMetrics registers the aggregation counters with the default
// Prometheus registry. Call once from main; the aggregator works without
// it (tests skip registration).
func InitMetrics() {
	eventsFolded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoinsight",
		Name:      "events_folded_total",
		Help:      "Viewer delta events folded into retention partial sums.",
	})
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "videoinsight",
			Name:      "events_dropped_total",
			Help:      "Viewer events dropped before folding, by reason.",
		},
		[]string{"reason"},
	)
	orderingViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoinsight",
		Name:      "ordering_violations_total",
		Help:      "Events whose session pairing was inconsistent (END before START, doubled START).",
	})
	prometheus.MustRegister(eventsFolded, eventsDropped, orderingViolations)
}

func observeOrdering() {
	if orderingViolations != nil {
		orderingViolations.Inc()
	}
}

func observeFolded() {
	if eventsFolded != nil {
		eventsFolded.Inc()
	}
}

func observeDropped(reason string) {
	if eventsDropped != nil {
		eventsDropped.WithLabelValues(reason).Inc()
	}
}
