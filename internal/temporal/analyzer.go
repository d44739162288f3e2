package temporal

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vigil-sys/vigil/internal/models"
)

// Config bounds the detection windows. Zero values fall back to defaults.
type Config struct {
	FlapWindow       time.Duration // presence-toggle window
	FlapTransitions  int           // toggles needed inside FlapWindow
	EscalationWindow time.Duration
	DriftWindow      time.Duration // numeric drift window
	DriftMinPoints   int
	DriftDelta       float64 // minimum last-minus-first movement
	DriftStepRatio   float64 // share of steps that must move one way
	DriftWatermark   float64 // degrading also requires the latest value above this
	RecurrenceWindow time.Duration
	RecurrenceCount  int // reopenings needed inside RecurrenceWindow
	RecoveryTTL      time.Duration
	Retention        time.Duration // in-memory history horizon
	MaxPoints        int           // per-subject point cap
}

// DefaultAnalyzerConfig returns the detection windows the daemon ships with.
func DefaultAnalyzerConfig() Config {
	return Config{
		FlapWindow:       time.Hour,
		FlapTransitions:  3,
		EscalationWindow: 24 * time.Hour,
		DriftWindow:      24 * time.Hour,
		DriftMinPoints:   3,
		DriftDelta:       15,
		DriftStepRatio:   0.7,
		DriftWatermark:   80,
		RecurrenceWindow: 7 * 24 * time.Hour,
		RecurrenceCount:  2,
		RecoveryTTL:      24 * time.Hour,
		Retention:        7 * 24 * time.Hour,
		MaxPoints:        4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultAnalyzerConfig()
	if c.FlapWindow <= 0 {
		c.FlapWindow = d.FlapWindow
	}
	if c.FlapTransitions <= 0 {
		c.FlapTransitions = d.FlapTransitions
	}
	if c.EscalationWindow <= 0 {
		c.EscalationWindow = d.EscalationWindow
	}
	if c.DriftWindow <= 0 {
		c.DriftWindow = d.DriftWindow
	}
	if c.DriftMinPoints <= 0 {
		c.DriftMinPoints = d.DriftMinPoints
	}
	if c.DriftDelta <= 0 {
		c.DriftDelta = d.DriftDelta
	}
	if c.DriftStepRatio <= 0 {
		c.DriftStepRatio = d.DriftStepRatio
	}
	if c.DriftWatermark <= 0 {
		c.DriftWatermark = d.DriftWatermark
	}
	if c.RecurrenceWindow <= 0 {
		c.RecurrenceWindow = d.RecurrenceWindow
	}
	if c.RecurrenceCount <= 0 {
		c.RecurrenceCount = d.RecurrenceCount
	}
	if c.RecoveryTTL <= 0 {
		c.RecoveryTTL = d.RecoveryTTL
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = d.MaxPoints
	}
	return c
}

// Result is one cycle's temporal output plus the points recorded, so the
// caller can persist them.
type Result struct {
	Trends     []models.TrendObservation
	Recoveries []models.RecoveryNotice
	Issues     []IssuePoint
	Metrics    []MetricPoint
}

// Analyzer keeps per-subject observation history and derives trends from it.
// Not safe for concurrent use; the orchestrator is the single caller.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger

	issues  map[string][]IssuePoint
	metrics map[string][]MetricPoint

	// firstDetected pins a trend's start time across cycles while it keeps
	// firing. Keyed subject + "|" + trend type.
	firstDetected map[string]time.Time

	recoveries map[string]models.RecoveryNotice
}

// NewAnalyzer constructs an Analyzer with empty history.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		issues:        make(map[string][]IssuePoint),
		metrics:       make(map[string][]MetricPoint),
		firstDetected: make(map[string]time.Time),
		recoveries:    make(map[string]models.RecoveryNotice),
	}
}

// Seed replays persisted observations into the in-memory windows. Call once
// at startup, before the first Observe.
func (a *Analyzer) Seed(issues []IssuePoint, metrics []MetricPoint) {
	for _, p := range issues {
		a.issues[p.Subject] = append(a.issues[p.Subject], p)
	}
	for _, p := range metrics {
		a.metrics[p.Subject] = append(a.metrics[p.Subject], p)
	}
	a.logger.Info("temporal history seeded",
		slog.Int("issue_subjects", len(a.issues)),
		slog.Int("metric_subjects", len(a.metrics)))
}

// Observe records one cycle and returns the trends and recoveries visible
// afterwards. Subjects no longer firing get an explicit absent point so
// presence toggles are countable.
func (a *Analyzer) Observe(now time.Time, active, recovered []models.CorrelatedIssue, metrics []MetricPoint) Result {
	var res Result

	activeSubjects := make(map[string]models.Severity, len(active))
	for _, issue := range active {
		if cur, ok := activeSubjects[issue.Subject]; !ok || issue.Severity.Rank() > cur.Rank() {
			activeSubjects[issue.Subject] = issue.Severity
		}
	}
	for subject, severity := range activeSubjects {
		res.Issues = append(res.Issues, IssuePoint{Subject: subject, Timestamp: now, Present: true, Severity: severity})
	}
	for subject := range a.issues {
		if _, ok := activeSubjects[subject]; !ok {
			res.Issues = append(res.Issues, IssuePoint{Subject: subject, Timestamp: now, Present: false})
		}
	}
	sort.Slice(res.Issues, func(i, j int) bool { return res.Issues[i].Subject < res.Issues[j].Subject })

	for _, p := range res.Issues {
		a.issues[p.Subject] = appendCapped(a.issues[p.Subject], p, a.cfg.MaxPoints)
	}
	for _, p := range metrics {
		p.Timestamp = now
		res.Metrics = append(res.Metrics, p)
		a.metrics[p.Subject] = appendCapped(a.metrics[p.Subject], p, a.cfg.MaxPoints)
	}
	a.evict(now)

	res.Trends = a.detectTrends(now)
	res.Recoveries = a.collectRecoveries(now, recovered)
	return res
}

func appendCapped[T any](points []T, p T, limit int) []T {
	points = append(points, p)
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}

func (a *Analyzer) evict(now time.Time) {
	horizon := now.Add(-a.cfg.Retention)
	for subject, points := range a.issues {
		kept := trimIssues(points, horizon)
		// A subject whose remaining history is all absent markers carries
		// no signal; drop it so the map does not grow without bound.
		anyPresent := false
		for _, p := range kept {
			if p.Present {
				anyPresent = true
				break
			}
		}
		if len(kept) == 0 || !anyPresent {
			delete(a.issues, subject)
			continue
		}
		a.issues[subject] = kept
	}
	for subject, points := range a.metrics {
		kept := trimMetrics(points, horizon)
		if len(kept) == 0 {
			delete(a.metrics, subject)
			continue
		}
		a.metrics[subject] = kept
	}
}

func trimIssues(points []IssuePoint, horizon time.Time) []IssuePoint {
	idx := 0
	for idx < len(points) && points[idx].Timestamp.Before(horizon) {
		idx++
	}
	return points[idx:]
}

func trimMetrics(points []MetricPoint, horizon time.Time) []MetricPoint {
	idx := 0
	for idx < len(points) && points[idx].Timestamp.Before(horizon) {
		idx++
	}
	return points[idx:]
}

func (a *Analyzer) detectTrends(now time.Time) []models.TrendObservation {
	var trends []models.TrendObservation
	seen := make(map[string]bool)

	record := func(t models.TrendObservation) {
		key := t.Subject + "|" + string(t.TrendType)
		first, ok := a.firstDetected[key]
		if !ok {
			first = now
			a.firstDetected[key] = first
		}
		t.FirstDetected = first
		t.DurationHours = now.Sub(first).Hours()
		trends = append(trends, t)
		seen[key] = true
	}

	subjects := make([]string, 0, len(a.issues))
	for subject := range a.issues {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		points := a.issues[subject]
		flapping := a.flapping(points, now)
		if flapping {
			record(models.TrendObservation{
				Subject:           subject,
				TrendType:         models.TrendFlapping,
				ProjectedSeverity: models.SeverityWarning,
				Recommendation: fmt.Sprintf("%s is oscillating between firing and clearing. "+
					"Investigate the underlying condition rather than the individual alerts.", subject),
			})
		}
		if projected, ok := a.escalating(points, now); ok {
			record(models.TrendObservation{
				Subject:           subject,
				TrendType:         models.TrendEscalating,
				ProjectedSeverity: projected,
				Recommendation: fmt.Sprintf("%s has grown more severe over the last 24 hours. "+
					"Act before it reaches a critical state.", subject),
			})
		}
		// Flapping already explains short-window reopenings.
		if !flapping && a.recurring(points, now) {
			record(models.TrendObservation{
				Subject:           subject,
				TrendType:         models.TrendRecurring,
				ProjectedSeverity: models.SeverityWarning,
				Recommendation: fmt.Sprintf("%s keeps coming back after clearing. "+
					"A previous fix may be masking the real cause.", subject),
			})
		}
	}

	metricSubjects := make([]string, 0, len(a.metrics))
	for subject := range a.metrics {
		metricSubjects = append(metricSubjects, subject)
	}
	sort.Strings(metricSubjects)

	for _, subject := range metricSubjects {
		points := a.metrics[subject]
		switch drift := a.drift(points, now); drift {
		case driftDegrading:
			projected := models.SeverityWarning
			if points[len(points)-1].Value >= 95 {
				projected = models.SeverityCritical
			}
			record(models.TrendObservation{
				Subject:           subject,
				TrendType:         models.TrendDegrading,
				ProjectedSeverity: projected,
				Recommendation: fmt.Sprintf("%s has been climbing steadily and is now at %.0f%%. "+
					"Free capacity before it runs out.", subject, points[len(points)-1].Value),
			})
		case driftImproving:
			record(models.TrendObservation{
				Subject:           subject,
				TrendType:         models.TrendImproving,
				ProjectedSeverity: models.SeverityInfo,
				Recommendation:    fmt.Sprintf("%s has been falling steadily. No action needed.", subject),
			})
		}
	}

	// Drop pinned start times for trends that stopped firing.
	for key := range a.firstDetected {
		if !seen[key] {
			delete(a.firstDetected, key)
		}
	}

	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Subject != trends[j].Subject {
			return trends[i].Subject < trends[j].Subject
		}
		return trends[i].TrendType < trends[j].TrendType
	})
	return trends
}

// flapping reports whether the subject toggled presence at least
// FlapTransitions times inside FlapWindow.
func (a *Analyzer) flapping(points []IssuePoint, now time.Time) bool {
	horizon := now.Add(-a.cfg.FlapWindow)
	transitions := 0
	var prev *IssuePoint
	for idx := range points {
		p := points[idx]
		if p.Timestamp.Before(horizon) {
			continue
		}
		if prev != nil && prev.Present != p.Present {
			transitions++
		}
		prev = &points[idx]
	}
	return transitions >= a.cfg.FlapTransitions
}

// escalating reports whether severity rose strictly within the current
// uninterrupted present-run, looking back at most EscalationWindow.
func (a *Analyzer) escalating(points []IssuePoint, now time.Time) (models.Severity, bool) {
	if len(points) == 0 || !points[len(points)-1].Present {
		return "", false
	}
	horizon := now.Add(-a.cfg.EscalationWindow)

	// Walk back through the present-run.
	start := len(points) - 1
	for start > 0 && points[start-1].Present && !points[start-1].Timestamp.Before(horizon) {
		start--
	}
	run := points[start:]
	if len(run) < 2 {
		return "", false
	}
	first := run[0].Severity
	last := run[len(run)-1].Severity
	if last.Rank() <= first.Rank() {
		return "", false
	}
	// No dips below the starting tier along the way.
	for _, p := range run {
		if p.Severity.Rank() < first.Rank() {
			return "", false
		}
	}
	return last, true
}

// recurring reports whether the subject reopened (absent then present) at
// least RecurrenceCount times inside RecurrenceWindow.
func (a *Analyzer) recurring(points []IssuePoint, now time.Time) bool {
	horizon := now.Add(-a.cfg.RecurrenceWindow)
	reopenings := 0
	var prev *IssuePoint
	for idx := range points {
		p := points[idx]
		if p.Timestamp.Before(horizon) {
			continue
		}
		if prev != nil && !prev.Present && p.Present {
			reopenings++
		}
		prev = &points[idx]
	}
	return reopenings >= a.cfg.RecurrenceCount
}

type driftKind int

const (
	driftNone driftKind = iota
	driftDegrading
	driftImproving
)

// drift classifies a numeric series as degrading, improving, or neither.
// Degrading needs sustained movement above the watermark; improving is the
// mirror without the watermark requirement.
func (a *Analyzer) drift(points []MetricPoint, now time.Time) driftKind {
	horizon := now.Add(-a.cfg.DriftWindow)
	window := make([]MetricPoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(horizon) {
			window = append(window, p)
		}
	}
	if len(window) < a.cfg.DriftMinPoints {
		return driftNone
	}

	delta := window[len(window)-1].Value - window[0].Value
	up, down := 0, 0
	for idx := 1; idx < len(window); idx++ {
		switch {
		case window[idx].Value > window[idx-1].Value:
			up++
		case window[idx].Value < window[idx-1].Value:
			down++
		}
	}
	steps := len(window) - 1

	if delta >= a.cfg.DriftDelta &&
		float64(up) >= a.cfg.DriftStepRatio*float64(steps) &&
		window[len(window)-1].Value > a.cfg.DriftWatermark {
		return driftDegrading
	}
	if delta <= -a.cfg.DriftDelta &&
		float64(down) >= a.cfg.DriftStepRatio*float64(steps) {
		return driftImproving
	}
	return driftNone
}

func (a *Analyzer) collectRecoveries(now time.Time, recovered []models.CorrelatedIssue) []models.RecoveryNotice {
	for _, issue := range recovered {
		a.recoveries[issue.Subject] = models.RecoveryNotice{
			Subject:          issue.Subject,
			RecoveryTime:     now,
			DurationHours:    now.Sub(issue.FirstSeen).Hours(),
			Resolution:       fmt.Sprintf("%s stopped firing", issue.Summary),
			OriginalSeverity: issue.Severity,
		}
	}

	out := make([]models.RecoveryNotice, 0, len(a.recoveries))
	for subject, notice := range a.recoveries {
		if now.Sub(notice.RecoveryTime) > a.cfg.RecoveryTTL {
			delete(a.recoveries, subject)
			continue
		}
		out = append(out, notice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}
