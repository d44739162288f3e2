package engine

import "github.com/vigil-sys/vigil/internal/models"

// Health score deductions. Info-level issues carry no penalty; they are
// context, not damage.
const (
	criticalPenalty   = 20
	warningPenalty    = 10
	escalatingPenalty = 5
	flappingPenalty   = 3
)

// HealthScore computes the 0-100 score from the cycle's issues and trends.
func HealthScore(issues []models.CorrelatedIssue, trends []models.TrendObservation) int {
	score := 100
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			score -= criticalPenalty
		case models.SeverityWarning:
			score -= warningPenalty
		}
	}
	for _, trend := range trends {
		switch trend.TrendType {
		case models.TrendEscalating:
			score -= escalatingPenalty
		case models.TrendFlapping:
			score -= flappingPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
