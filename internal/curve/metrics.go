package curve

import "github.com/prometheus/client_golang/prometheus"

var clampCounter prometheus.Counter

// InitMetrics registers the clamp diagnostic with the default registry.
// Optional, mirrors aggregate.InitMetrics.
func InitMetrics() {
	clampCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoinsight",
		Name:      "curve_negative_clamps_total",
		Help:      "Curve samples clamped from a negative prefix sum to zero.",
	})
	prometheus.MustRegister(clampCounter)
}

func observeClamp() {
	if clampCounter != nil {
		clampCounter.Inc()
	}
}
