// Package engine runs the assessment cycle: diagnostic rules, correlation,
// temporal analysis, and health scoring, in that order.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-sys/vigil/internal/correlation"
	"github.com/vigil-sys/vigil/internal/models"
	"github.com/vigil-sys/vigil/internal/rules"
	"github.com/vigil-sys/vigil/internal/temporal"
)

// HistoryStore is the durable observation log the orchestrator writes each
// cycle. Nil disables persistence; detection windows then reset on restart.
type HistoryStore interface {
	AppendCycle(issues []temporal.IssuePoint, metrics []temporal.MetricPoint) error
	Prune(before time.Time) (int64, error)
}

// Orchestrator wires the pipeline stages and produces one assessment per
// cycle. A cycle never fails: missing telemetry and storage errors degrade
// the result, they do not abort it.
type Orchestrator struct {
	logger     *slog.Logger
	evaluator  *rules.Evaluator
	correlator *correlation.Engine
	analyzer   *temporal.Analyzer
	history    HistoryStore
	retention  time.Duration

	// newID is swappable so tests can pin assessment ids.
	newID func() string
}

// NewOrchestrator constructs the cycle pipeline. history may be nil.
func NewOrchestrator(
	logger *slog.Logger,
	evaluator *rules.Evaluator,
	correlator *correlation.Engine,
	analyzer *temporal.Analyzer,
	history HistoryStore,
	retention time.Duration,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		logger:     logger,
		evaluator:  evaluator,
		correlator: correlator,
		analyzer:   analyzer,
		history:    history,
		retention:  retention,
		newID:      uuid.NewString,
	}
}

// RunCycle executes one full assessment over the snapshot and any raw
// signals collected alongside it. The assessment timestamp comes from the
// snapshot so the output is a pure function of its input.
func (o *Orchestrator) RunCycle(snap *models.TelemetrySnapshot, raw []models.Signal) models.ProactiveAssessment {
	now := time.Now().UTC()
	if snap != nil {
		now = snap.Timestamp.UTC()
	}

	insights := o.evaluator.Evaluate(snap)
	active, recovered := o.correlator.Correlate(correlation.Input{
		Snapshot: snap,
		Insights: insights,
		Raw:      raw,
		Now:      now,
	})
	temporalResult := o.analyzer.Observe(now, active, recovered, metricPoints(snap))

	if o.history != nil {
		if err := o.history.AppendCycle(temporalResult.Issues, temporalResult.Metrics); err != nil {
			o.logger.Warn("failed to persist observations", slog.Any("error", err))
		}
		if _, err := o.history.Prune(now.Add(-o.retention)); err != nil {
			o.logger.Warn("failed to prune observations", slog.Any("error", err))
		}
	}

	assessment := models.ProactiveAssessment{
		AssessmentID:     o.newID(),
		Timestamp:        now,
		CorrelatedIssues: active,
		Trends:           temporalResult.Trends,
		Recoveries:       temporalResult.Recoveries,
		HealthScore:      HealthScore(active, temporalResult.Trends),
		MaxSeverity:      models.SeverityInfo,
	}
	for _, issue := range active {
		assessment.MaxSeverity = models.MaxSeverity(assessment.MaxSeverity, issue.Severity)
		switch issue.Severity {
		case models.SeverityCritical:
			assessment.CriticalCount++
		case models.SeverityWarning:
			assessment.WarningCount++
		default:
			assessment.InfoCount++
		}
	}

	o.logger.Info("assessment complete",
		slog.String("assessment_id", assessment.AssessmentID),
		slog.Int("health_score", assessment.HealthScore),
		slog.Int("issues", len(active)),
		slog.Int("trends", len(assessment.Trends)),
		slog.Int("recoveries", len(assessment.Recoveries)))
	return assessment
}

// metricPoints extracts the drift-tracked numeric series from a snapshot.
// All series are percentages so a single watermark applies.
func metricPoints(snap *models.TelemetrySnapshot) []temporal.MetricPoint {
	if snap == nil {
		return nil
	}
	var points []temporal.MetricPoint
	for _, disk := range snap.Disks {
		points = append(points, temporal.MetricPoint{
			Subject: fmt.Sprintf("disk:%s", disk.Mountpoint),
			Value:   disk.UsedPercent,
		})
	}
	if snap.Memory != nil {
		points = append(points, temporal.MetricPoint{Subject: "memory", Value: snap.Memory.UsedPercent})
		if snap.Memory.SwapConfigured {
			points = append(points, temporal.MetricPoint{Subject: "swap", Value: snap.Memory.SwapUsedPercent})
		}
	}
	if snap.CPU != nil {
		points = append(points, temporal.MetricPoint{Subject: "cpu", Value: snap.CPU.UsagePercent})
	}
	return points
}
