package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-sys/vigil/internal/models"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func issue(subject string, sev models.Severity, firstSeen time.Time) models.CorrelatedIssue {
	return models.CorrelatedIssue{
		CorrelationID: "TEST:" + subject,
		Subject:       subject,
		Severity:      sev,
		Summary:       subject + " issue",
		FirstSeen:     firstSeen,
	}
}

func findTrend(trends []models.TrendObservation, subject string, tt models.TrendType) *models.TrendObservation {
	for idx := range trends {
		if trends[idx].Subject == subject && trends[idx].TrendType == tt {
			return &trends[idx]
		}
	}
	return nil
}

func TestFlappingNeedsThreeTransitions(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	// present, absent, present, absent inside 59 minutes: 3 transitions.
	states := []bool{true, false, true, false}
	var res Result
	for i, present := range states {
		now := base.Add(time.Duration(i) * 19 * time.Minute)
		var active []models.CorrelatedIssue
		if present {
			active = []models.CorrelatedIssue{issue("nginx", models.SeverityWarning, now)}
		}
		res = a.Observe(now, active, nil, nil)
	}
	require.NotNil(t, findTrend(res.Trends, "nginx", models.TrendFlapping))
}

func TestTwoTransitionsIsNotFlapping(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	states := []bool{true, false, true}
	var res Result
	for i, present := range states {
		now := base.Add(time.Duration(i) * 19 * time.Minute)
		var active []models.CorrelatedIssue
		if present {
			active = []models.CorrelatedIssue{issue("nginx", models.SeverityWarning, now)}
		}
		res = a.Observe(now, active, nil, nil)
	}
	assert.Nil(t, findTrend(res.Trends, "nginx", models.TrendFlapping))
}

func TestEscalationDetectedOnSeverityRise(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	res := a.Observe(base, []models.CorrelatedIssue{issue("cpu", models.SeverityWarning, base)}, nil, nil)
	assert.Nil(t, findTrend(res.Trends, "cpu", models.TrendEscalating))

	later := base.Add(30 * time.Minute)
	res = a.Observe(later, []models.CorrelatedIssue{issue("cpu", models.SeverityCritical, base)}, nil, nil)

	trend := findTrend(res.Trends, "cpu", models.TrendEscalating)
	require.NotNil(t, trend)
	assert.Equal(t, models.SeverityCritical, trend.ProjectedSeverity)
}

func TestNoEscalationWhenSeverityStable(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)
	for i := 0; i < 3; i++ {
		now := base.Add(time.Duration(i) * 10 * time.Minute)
		res := a.Observe(now, []models.CorrelatedIssue{issue("cpu", models.SeverityWarning, base)}, nil, nil)
		assert.Nil(t, findTrend(res.Trends, "cpu", models.TrendEscalating))
	}
}

func TestDegradingDiskTrend(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	values := []float64{65, 72, 78, 85}
	var res Result
	for i, v := range values {
		now := base.Add(time.Duration(i) * time.Hour)
		res = a.Observe(now, nil, nil, []MetricPoint{{Subject: "disk:/", Value: v}})
	}

	trend := findTrend(res.Trends, "disk:/", models.TrendDegrading)
	require.NotNil(t, trend)
	assert.Equal(t, models.SeverityWarning, trend.ProjectedSeverity)
	assert.NotEmpty(t, trend.Recommendation)
}

func TestImprovingTrend(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	values := []float64{90, 80, 70, 60}
	var res Result
	for i, v := range values {
		now := base.Add(time.Duration(i) * time.Hour)
		res = a.Observe(now, nil, nil, []MetricPoint{{Subject: "memory", Value: v}})
	}
	require.NotNil(t, findTrend(res.Trends, "memory", models.TrendImproving))
}

func TestFlatSeriesHasNoDriftTrend(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)
	var res Result
	for i := 0; i < 5; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		res = a.Observe(now, nil, nil, []MetricPoint{{Subject: "disk:/", Value: 85}})
	}
	assert.Nil(t, findTrend(res.Trends, "disk:/", models.TrendDegrading))
	assert.Nil(t, findTrend(res.Trends, "disk:/", models.TrendImproving))
}

func TestRecurringAfterRepeatedReopenings(t *testing.T) {
	// Spread transitions over hours so the flap window never sees three.
	a := NewAnalyzer(Config{}, nil)

	states := []bool{true, false, true, false, true}
	var res Result
	for i, present := range states {
		now := base.Add(time.Duration(i) * 6 * time.Hour)
		var active []models.CorrelatedIssue
		if present {
			active = []models.CorrelatedIssue{issue("bluetooth", models.SeverityWarning, now)}
		}
		res = a.Observe(now, active, nil, nil)
	}

	require.NotNil(t, findTrend(res.Trends, "bluetooth", models.TrendRecurring))
	assert.Nil(t, findTrend(res.Trends, "bluetooth", models.TrendFlapping))
}

func TestRecoveryNoticeCarriesDuration(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	firstSeen := base.Add(-3 * time.Hour)
	recovered := []models.CorrelatedIssue{issue("nginx", models.SeverityCritical, firstSeen)}
	res := a.Observe(base, nil, recovered, nil)

	require.Len(t, res.Recoveries, 1)
	notice := res.Recoveries[0]
	assert.Equal(t, "nginx", notice.Subject)
	assert.Equal(t, base, notice.RecoveryTime)
	assert.InDelta(t, 3.0, notice.DurationHours, 0.01)
	assert.Equal(t, models.SeverityCritical, notice.OriginalSeverity)
}

func TestRecoveryNoticeExpiresAfterTTL(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	recovered := []models.CorrelatedIssue{issue("nginx", models.SeverityWarning, base.Add(-time.Hour))}
	res := a.Observe(base, nil, recovered, nil)
	require.Len(t, res.Recoveries, 1)

	res = a.Observe(base.Add(23*time.Hour), nil, nil, nil)
	assert.Len(t, res.Recoveries, 1)

	res = a.Observe(base.Add(25*time.Hour), nil, nil, nil)
	assert.Empty(t, res.Recoveries)
}

func TestHistoryEvictedBeyondRetention(t *testing.T) {
	a := NewAnalyzer(Config{Retention: 24 * time.Hour}, nil)

	a.Observe(base, []models.CorrelatedIssue{issue("nginx", models.SeverityWarning, base)}, nil, nil)
	assert.Len(t, a.issues["nginx"], 1)

	// Two days later the subject's history is gone entirely.
	a.Observe(base.Add(48*time.Hour), nil, nil, nil)
	_, ok := a.issues["nginx"]
	assert.False(t, ok)
}

func TestSeedRestoresWindows(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	var points []IssuePoint
	states := []bool{true, false, true}
	for i, present := range states {
		points = append(points, IssuePoint{
			Subject:   "nginx",
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Present:   present,
			Severity:  models.SeverityWarning,
		})
	}
	a.Seed(points, nil)

	// The seeded toggles plus one more complete the flapping pattern.
	res := a.Observe(base.Add(45*time.Minute), nil, nil, nil)
	require.NotNil(t, findTrend(res.Trends, "nginx", models.TrendFlapping))
}

func TestTrendFirstDetectedPinnedWhileFiring(t *testing.T) {
	a := NewAnalyzer(Config{}, nil)

	values := []float64{65, 72, 78, 85, 88}
	var first time.Time
	for i, v := range values {
		now := base.Add(time.Duration(i) * time.Hour)
		res := a.Observe(now, nil, nil, []MetricPoint{{Subject: "disk:/", Value: v}})
		if trend := findTrend(res.Trends, "disk:/", models.TrendDegrading); trend != nil {
			if first.IsZero() {
				first = trend.FirstDetected
			} else {
				assert.Equal(t, first, trend.FirstDetected)
				assert.Greater(t, trend.DurationHours, 0.0)
			}
		}
	}
	require.False(t, first.IsZero())
}
