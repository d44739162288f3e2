package models

import "time"

// SourceKind enumerates where a signal originated.
type SourceKind string

const (
	SourceRule      SourceKind = "rule"
	SourceHealth    SourceKind = "health"
	SourceNetwork   SourceKind = "network"
	SourceHistorian SourceKind = "historian"
	SourceJournal   SourceKind = "journal"
)

// SignalSource identifies the producer of a signal. Ref carries the
// producer-specific identifier: a rule id, a subsystem name, a network
// metric, or a journal unit.
type SignalSource struct {
	Kind SourceKind `json:"kind"`
	Ref  string     `json:"ref,omitempty"`
}

// ValueKind tags the payload carried by a SignalValue.
type ValueKind string

const (
	ValueBool    ValueKind = "bool"
	ValuePercent ValueKind = "percent"
	ValueCount   ValueKind = "count"
	ValueLatency ValueKind = "latency_ms"
	ValueText    ValueKind = "text"
)

// SignalValue is a tagged union of the telemetry value types.
type SignalValue struct {
	Kind      ValueKind `json:"kind"`
	Bool      bool      `json:"bool,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Count     int       `json:"count,omitempty"`
	LatencyMs float64   `json:"latency_ms,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// BoolValue wraps a boolean telemetry value.
func BoolValue(v bool) SignalValue { return SignalValue{Kind: ValueBool, Bool: v} }

// PercentValue wraps a percentage telemetry value.
func PercentValue(v float64) SignalValue { return SignalValue{Kind: ValuePercent, Percent: v} }

// CountValue wraps a count telemetry value.
func CountValue(v int) SignalValue { return SignalValue{Kind: ValueCount, Count: v} }

// LatencyValue wraps a latency (milliseconds) telemetry value.
func LatencyValue(v float64) SignalValue { return SignalValue{Kind: ValueLatency, LatencyMs: v} }

// TextValue wraps a free-text telemetry value.
func TextValue(v string) SignalValue { return SignalValue{Kind: ValueText, Text: v} }

// Signal is one atomic piece of telemetry evidence. Signals are created
// fresh each cycle and never persisted standalone.
type Signal struct {
	Source      SignalSource `json:"source"`
	Observation string       `json:"observation"`
	Value       SignalValue  `json:"value"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Insight is the output of one diagnostic rule evaluated against a
// telemetry snapshot.
type Insight struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Summary  string   `json:"summary"`
	Details  string   `json:"details,omitempty"`
	Evidence []Signal `json:"evidence"`
}
