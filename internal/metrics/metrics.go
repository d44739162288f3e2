package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-sys/vigil/internal/models"
)

const (
	// OutcomeSuccess labels completed assessment cycles.
	OutcomeSuccess = "success"
	// OutcomeSkipped labels ticks skipped because the previous cycle overran.
	OutcomeSkipped = "skipped"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "cycles_total",
			Help:      "Total number of assessment cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vigil",
			Name:      "cycle_seconds",
			Help:      "Assessment cycle latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	healthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Name:      "health_score",
			Help:      "Current system health score (0-100).",
		},
	)

	openIssues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Name:      "open_issues",
			Help:      "Correlated issues currently open, partitioned by severity.",
		},
		[]string{"severity"},
	)
)

// Register attaches the daemon's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		healthScore,
		openIssues,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a completed cycle's duration.
func ObserveCycle(duration time.Duration) {
	cyclesTotal.WithLabelValues(OutcomeSuccess).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// CycleSkipped records a tick skipped due to an overrunning cycle.
func CycleSkipped() {
	cyclesTotal.WithLabelValues(OutcomeSkipped).Inc()
}

// PublishAssessment updates the gauges derived from the latest assessment.
func PublishAssessment(a models.ProactiveAssessment) {
	healthScore.Set(float64(a.HealthScore))
	openIssues.WithLabelValues(string(models.SeverityCritical)).Set(float64(a.CriticalCount))
	openIssues.WithLabelValues(string(models.SeverityWarning)).Set(float64(a.WarningCount))
	openIssues.WithLabelValues(string(models.SeverityInfo)).Set(float64(a.InfoCount))
}
