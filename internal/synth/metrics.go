package synth

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsPublished *prometheus.CounterVec
	sessionsStarted *prometheus.CounterVec
	sessionsLive    prometheus.Gauge
)

// InitMetrics registers the synthesizer counters with the default
// registry. Call once from main.
func InitMetrics() {
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "videoinsight",
			Name:      "events_published_total",
			Help:      "Viewer events handed to the transport, by type.",
		},
		[]string{"event_type"},
	)
	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "videoinsight",
			Name:      "sessions_started_total",
			Help:      "Simulated viewing sessions started, by archetype.",
		},
		[]string{"archetype"},
	)
	sessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "videoinsight",
		Name:      "sessions_live",
		Help:      "Simulated sessions currently between START and END.",
	})
	prometheus.MustRegister(eventsPublished, sessionsStarted, sessionsLive)
}

func observePublished(eventType string) {
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func observeSessionStarted(archetype string) {
	if sessionsStarted != nil {
		sessionsStarted.WithLabelValues(archetype).Inc()
	}
}

func observeLive(delta float64) {
	if sessionsLive != nil {
		sessionsLive.Add(delta)
	}
}
