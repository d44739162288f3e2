// Package correlation fuses diagnostic insights and raw signals into
// deduplicated, confidence-scored root-cause issues via a priority-ordered
// rule matrix.
package correlation

import (
	"log/slog"
	"sort"
	"time"

	"github.com/vigil-sys/vigil/internal/models"
)

// Config parameterises confidence handling. MinConfidence is the surfacing
// threshold; SingleSignalConfidence is the floor assigned to matches backed
// by exactly one evidence signal. Setting the floor below the threshold
// suppresses single-signal issues entirely.
type Config struct {
	MinConfidence          int
	SingleSignalConfidence int
	MaxTracked             int
}

// DefaultConfig mirrors the engine's historical behaviour: a 70% surfacing
// threshold with single-signal matches entering at exactly the threshold.
func DefaultConfig() Config {
	return Config{
		MinConfidence:          70,
		SingleSignalConfidence: 70,
		MaxTracked:             50,
	}
}

// Input bundles one cycle's worth of evidence.
type Input struct {
	Snapshot *models.TelemetrySnapshot
	Insights []models.Insight
	Raw      []models.Signal
	Now      time.Time
}

// candidate is a matrix row's proposal before dedup and confidence gating.
type candidate struct {
	Subject     string
	RootCause   models.RootCause
	Signals     []models.Signal
	Severity    models.Severity
	Summary     string
	Details     string
	Remediation []string
	Confidence  int
}

// matrixRule is one row of the correlation matrix. Rows are evaluated in
// slice order; the first row to claim a subject wins it for the cycle.
type matrixRule struct {
	ID    string
	Match func(Input) []candidate
}

// Engine evaluates the correlation matrix and tracks open issues across
// cycles. It is not safe for concurrent use; the orchestrator is the single
// caller.
type Engine struct {
	rules  []matrixRule
	cfg    Config
	logger *slog.Logger
	open   map[string]models.CorrelatedIssue
}

// NewEngine constructs the correlation engine with the fixed matrix.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	if cfg.SingleSignalConfidence <= 0 {
		cfg.SingleSignalConfidence = DefaultConfig().SingleSignalConfidence
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = DefaultConfig().MaxTracked
	}
	return &Engine{
		rules:  matrix(),
		cfg:    cfg,
		logger: logger,
		open:   make(map[string]models.CorrelatedIssue),
	}
}

// Correlate evaluates the matrix against one cycle's input. It returns the
// issues active this cycle and the previously-open issues that stopped
// firing (recovery candidates for the temporal analyzer).
func (e *Engine) Correlate(in Input) (active, recovered []models.CorrelatedIssue) {
	claimed := make(map[string]string)
	next := make(map[string]models.CorrelatedIssue)

	for _, rule := range e.rules {
		for _, cand := range rule.Match(in) {
			if owner, ok := claimed[cand.Subject]; ok {
				e.logger.Debug("subject already explained",
					slog.String("subject", cand.Subject),
					slog.String("rule", rule.ID),
					slog.String("owner", owner))
				continue
			}

			conf := cand.Confidence
			if len(cand.Signals) == 1 {
				conf = e.cfg.SingleSignalConfidence
			}
			conf = clampInt(conf, 0, 100)
			if conf < e.cfg.MinConfidence {
				e.logger.Debug("correlation below confidence threshold",
					slog.String("rule", rule.ID),
					slog.String("subject", cand.Subject),
					slog.Int("confidence", conf))
				continue
			}

			issue := models.CorrelatedIssue{
				CorrelationID:       rule.ID + ":" + cand.Subject,
				Subject:             cand.Subject,
				RootCause:           cand.RootCause,
				ContributingSignals: cand.Signals,
				Severity:            cand.Severity,
				Summary:             cand.Summary,
				Details:             cand.Details,
				RemediationCommands: cand.Remediation,
				Confidence:          conf,
				FirstSeen:           in.Now,
				LastSeen:            in.Now,
			}
			if prev, ok := e.open[issue.DedupKey()]; ok {
				issue.FirstSeen = prev.FirstSeen
			}

			claimed[cand.Subject] = rule.ID
			next[issue.DedupKey()] = issue
		}
	}

	for key, prev := range e.open {
		if _, still := next[key]; !still {
			recovered = append(recovered, prev)
		}
	}
	sort.Slice(recovered, func(i, j int) bool {
		return recovered[i].CorrelationID < recovered[j].CorrelationID
	})

	e.open = next

	active = make([]models.CorrelatedIssue, 0, len(next))
	for _, issue := range next {
		active = append(active, issue)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Severity.Rank() != active[j].Severity.Rank() {
			return active[i].Severity.Rank() > active[j].Severity.Rank()
		}
		if active[i].Confidence != active[j].Confidence {
			return active[i].Confidence > active[j].Confidence
		}
		return active[i].CorrelationID < active[j].CorrelationID
	})
	if len(active) > e.cfg.MaxTracked {
		active = active[:e.cfg.MaxTracked]
	}
	return active, recovered
}

// Open returns the number of issues currently tracked.
func (e *Engine) Open() int {
	return len(e.open)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
