package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigil-sys/vigil/internal/models"
)

func issues(severities ...models.Severity) []models.CorrelatedIssue {
	out := make([]models.CorrelatedIssue, len(severities))
	for i, sev := range severities {
		out[i] = models.CorrelatedIssue{Severity: sev}
	}
	return out
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name   string
		issues []models.CorrelatedIssue
		trends []models.TrendObservation
		want   int
	}{
		{name: "no findings", want: 100},
		{name: "one warning", issues: issues(models.SeverityWarning), want: 90},
		{name: "one critical", issues: issues(models.SeverityCritical), want: 80},
		{name: "info is free", issues: issues(models.SeverityInfo), want: 100},
		{
			name:   "mixed severities",
			issues: issues(models.SeverityCritical, models.SeverityCritical, models.SeverityWarning, models.SeverityWarning, models.SeverityWarning),
			want:   30,
		},
		{
			name:   "trends deduct",
			issues: issues(models.SeverityWarning),
			trends: []models.TrendObservation{
				{TrendType: models.TrendEscalating},
				{TrendType: models.TrendFlapping},
			},
			want: 82,
		},
		{
			name:   "improving trend is free",
			trends: []models.TrendObservation{{TrendType: models.TrendImproving}},
			want:   100,
		},
		{
			name: "clamped at zero",
			issues: issues(
				models.SeverityCritical, models.SeverityCritical, models.SeverityCritical,
				models.SeverityCritical, models.SeverityCritical, models.SeverityCritical,
			),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HealthScore(tt.issues, tt.trends))
		})
	}
}

func TestHealthBands(t *testing.T) {
	assert.Equal(t, "healthy", models.ProactiveAssessment{HealthScore: 100}.HealthBand())
	assert.Equal(t, "healthy", models.ProactiveAssessment{HealthScore: 90}.HealthBand())
	assert.Equal(t, "degraded", models.ProactiveAssessment{HealthScore: 80}.HealthBand())
	assert.Equal(t, "warning", models.ProactiveAssessment{HealthScore: 55}.HealthBand())
	assert.Equal(t, "critical", models.ProactiveAssessment{HealthScore: 30}.HealthBand())
}
