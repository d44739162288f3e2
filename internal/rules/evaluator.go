// Package rules implements the diagnostic rule evaluator: a fixed catalog
// of independent rules applied to one telemetry snapshot per cycle.
package rules

import (
	"log/slog"

	"github.com/vigil-sys/vigil/internal/models"
)

// Evaluator runs the diagnostic catalog against telemetry snapshots. It is
// a pure function of its input: same snapshot, same insights.
type Evaluator struct {
	catalog []DiagnosticRule
	logger  *slog.Logger
}

// NewEvaluator constructs an Evaluator over the fixed catalog.
func NewEvaluator(t Thresholds, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{catalog: Catalog(t), logger: logger}
}

// Evaluate applies every catalog rule to the snapshot. A rule whose
// telemetry is missing contributes nothing; no rule can fail the cycle.
func (e *Evaluator) Evaluate(snap *models.TelemetrySnapshot) []models.Insight {
	if snap == nil {
		return nil
	}
	insights := make([]models.Insight, 0, len(e.catalog))
	for _, rule := range e.catalog {
		insight := rule.Evaluate(snap)
		if insight == nil {
			continue
		}
		if len(insight.Evidence) == 0 {
			// Every insight must carry at least one evidence signal.
			e.logger.Debug("rule produced insight without evidence, dropping", slog.String("rule_id", rule.ID))
			continue
		}
		insights = append(insights, *insight)
	}
	return insights
}
