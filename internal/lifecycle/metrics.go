package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's operational counters. Register against the
// process registry in main; tests use a private registry.
type Metrics struct {
	SubmissionsTotal *prometheus.CounterVec
	DownloadsTotal   prometheus.Counter
	StampDuration    prometheus.Histogram
	StampInFlight    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "verifyd",
			Name:      "submissions_total",
			Help:      "Submissions by outcome.",
		}, []string{"outcome"}),
		DownloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "verifyd",
			Name:      "downloads_total",
			Help:      "Certified artifact downloads served.",
		}),
		StampDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "verifyd",
			Name:      "stamp_duration_seconds",
			Help:      "Wall time of stamping oracle invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		StampInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "verifyd",
			Name:      "stamp_in_flight",
			Help:      "Stamping oracle invocations currently running.",
		}),
	}
}

const (
	outcomeCertified      = "certified"
	outcomeReview         = "review"
	outcomeQuotaExceeded  = "quota_exceeded"
	outcomeInvalidInput   = "invalid_input"
	outcomeStampingFailed = "stamping_failed"
	outcomeError          = "error"
)
