package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meetkit"

var (
	connectionQualityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "quality",
		Name:      "connection_quality",
		Help:      "Local connection quality score, 0-100",
	})

	statusTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "status_transitions_total",
		Help:      "Participant connection status transitions by direction",
	}, []string{"direction"})

	ttfmHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "time_to_first_media_seconds",
		Help:      "Latency from session start to first rendered media",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	trackAttachCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "track_attaches_total",
		Help:      "Render surface attachments",
	})
)

func init() {
	prometheus.MustRegister(
		connectionQualityGauge,
		statusTransitionCounter,
		ttfmHistogram,
		trackAttachCounter,
	)
}
