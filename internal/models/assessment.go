package models

import "time"

// CorrelatedIssue is a deduplicated, confidence-scored root-cause finding.
// The correlation id is stable across cycles for the same (root cause,
// subject) pair.
type CorrelatedIssue struct {
	CorrelationID       string    `json:"correlation_id"`
	Subject             string    `json:"subject"`
	RootCause           RootCause `json:"root_cause"`
	ContributingSignals []Signal  `json:"contributing_signals"`
	Severity            Severity  `json:"severity"`
	Summary             string    `json:"summary"`
	Details             string    `json:"details,omitempty"`
	RemediationCommands []string  `json:"remediation_commands,omitempty"`
	Confidence          int       `json:"confidence"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
}

// DedupKey identifies an issue across cycles.
func (i CorrelatedIssue) DedupKey() string {
	return string(i.RootCause.Kind) + ":" + i.Subject
}

// TrendType enumerates temporal patterns.
type TrendType string

const (
	TrendEscalating TrendType = "escalating"
	TrendFlapping   TrendType = "flapping"
	TrendDegrading  TrendType = "degrading"
	TrendImproving  TrendType = "improving"
	TrendRecurring  TrendType = "recurring"
)

// TrendObservation describes a temporal pattern on one subject. It is
// derived entirely from window history and is always recomputable.
type TrendObservation struct {
	Subject           string    `json:"subject"`
	TrendType         TrendType `json:"trend_type"`
	DurationHours     float64   `json:"duration_hours"`
	ProjectedSeverity Severity  `json:"projected_severity"`
	Recommendation    string    `json:"recommendation"`
	FirstDetected     time.Time `json:"first_detected"`
}

// RecoveryNotice records an issue that stopped firing.
type RecoveryNotice struct {
	Subject          string    `json:"subject"`
	RecoveryTime     time.Time `json:"recovery_time"`
	DurationHours    float64   `json:"duration_hours"`
	Resolution       string    `json:"resolution,omitempty"`
	OriginalSeverity Severity  `json:"original_severity"`
}

// ProactiveAssessment is the single externally-visible artifact of one
// completed cycle. Immutable once published.
type ProactiveAssessment struct {
	AssessmentID     string             `json:"assessment_id"`
	Timestamp        time.Time          `json:"timestamp"`
	CorrelatedIssues []CorrelatedIssue  `json:"correlated_issues"`
	Trends           []TrendObservation `json:"trends"`
	Recoveries       []RecoveryNotice   `json:"recoveries"`
	HealthScore      int                `json:"health_score"`
	MaxSeverity      Severity           `json:"max_severity"`
	CriticalCount    int                `json:"critical_count"`
	WarningCount     int                `json:"warning_count"`
	InfoCount        int                `json:"info_count"`
}

// HealthBand maps the score onto the reporting bands.
func (a ProactiveAssessment) HealthBand() string {
	switch {
	case a.HealthScore >= 90:
		return "healthy"
	case a.HealthScore >= 70:
		return "degraded"
	case a.HealthScore >= 50:
		return "warning"
	default:
		return "critical"
	}
}
