package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-sys/vigil/internal/models"
	"github.com/vigil-sys/vigil/internal/rules"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), nil)
}

func inputFor(snap *models.TelemetrySnapshot, raw []models.Signal, now time.Time) Input {
	ev := rules.NewEvaluator(rules.DefaultThresholds(), nil)
	return Input{
		Snapshot: snap,
		Insights: ev.Evaluate(snap),
		Raw:      raw,
		Now:      now,
	}
}

func baseSnapshot(ts time.Time) *models.TelemetrySnapshot {
	return &models.TelemetrySnapshot{
		Timestamp: ts,
		CPU:       &models.CPUTelemetry{LoadPerCore: 0.3, UsagePercent: 20, CoreCount: 8},
		Memory:    &models.MemoryTelemetry{UsedPercent: 40},
		Disks: []models.DiskTelemetry{
			{Mountpoint: "/", UsedPercent: 50, InodesUsedPercent: 10},
		},
		Network: []models.InterfaceTelemetry{
			{Name: "eth0", Type: "ethernet", SpeedMbps: 1000, HasDefaultRoute: true, RxPackets: 10000, TxPackets: 10000},
		},
	}
}

func findByKind(issues []models.CorrelatedIssue, kind models.RootCauseKind) *models.CorrelatedIssue {
	for idx := range issues {
		if issues[idx].RootCause.Kind == kind {
			return &issues[idx]
		}
	}
	return nil
}

func TestDiskPressureFusesSignals(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.Disks[0].UsedPercent = 96
	snap.Disks[0].InodesUsedPercent = 92
	growth := []models.Signal{{
		Source:      models.SignalSource{Kind: models.SourceHistorian, Ref: "log_growth"},
		Observation: "/var/log grew 2.1GB in 24h",
		Value:       models.CountValue(2100),
		Timestamp:   t0,
	}}

	active, _ := newTestEngine().Correlate(inputFor(snap, growth, t0))

	issue := findByKind(active, models.KindDiskPressure)
	require.NotNil(t, issue)
	assert.Equal(t, "/", issue.Subject)
	assert.Equal(t, models.SeverityCritical, issue.Severity)
	require.NotNil(t, issue.RootCause.DiskPressure)
	assert.True(t, issue.RootCause.DiskPressure.InodeExhaustion)
	assert.Equal(t, 95, issue.Confidence) // 85 base +5 inodes +5 growth
	assert.Len(t, issue.ContributingSignals, 3)
	assert.NotEmpty(t, issue.RemediationCommands)

	// One issue for the mountpoint, not one per contributing symptom.
	count := 0
	for _, i := range active {
		if i.Subject == "/" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestServiceFailureOutranksFlapping(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.Services = []models.ServiceTelemetry{
		{Name: "nginx", State: "failed", RestartsLastHour: 6, ExitCode: 1},
	}

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))

	require.NotNil(t, findByKind(active, models.KindServiceConfigError))
	assert.Nil(t, findByKind(active, models.KindServiceFlapping))

	issue := findByKind(active, models.KindServiceConfigError)
	assert.Equal(t, "nginx", issue.Subject)
	assert.Equal(t, 90, issue.Confidence) // 80 base +10 restart corroboration
}

func TestRoutingConflictClaimsSubjectBeforePriorityMismatch(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.Network = []models.InterfaceTelemetry{
		{Name: "eth0", Type: "ethernet", SpeedMbps: 1000, HasDefaultRoute: true},
		{Name: "wlan0", Type: "wifi", SpeedMbps: 100, HasDefaultRoute: true},
		{Name: "eth1", Type: "ethernet", SpeedMbps: 2500, HasDefaultRoute: false},
	}

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))

	require.NotNil(t, findByKind(active, models.KindNetworkRoutingConflict))
	assert.Nil(t, findByKind(active, models.KindNetworkPriorityMismatch))
}

func TestQualityDegradationSkippedDuringRoutingConflict(t *testing.T) {
	snap := baseSnapshot(t0)
	loss := 15.0
	snap.Network = []models.InterfaceTelemetry{
		{Name: "eth0", SpeedMbps: 1000, HasDefaultRoute: true, PacketLossPercent: &loss},
		{Name: "wlan0", SpeedMbps: 100, HasDefaultRoute: true},
	}

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))

	assert.NotNil(t, findByKind(active, models.KindNetworkRoutingConflict))
	assert.Nil(t, findByKind(active, models.KindNetworkQualityDegradation))
}

func TestQualityDegradationConfidenceGrowsWithSignalTypes(t *testing.T) {
	snap := baseSnapshot(t0)
	loss := 10.0
	latency := 300.0
	snap.Network[0].PacketLossPercent = &loss

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))
	issue := findByKind(active, models.KindNetworkQualityDegradation)
	require.NotNil(t, issue)
	assert.Equal(t, 70, issue.Confidence)

	snap.Network[0].LatencyMs = &latency
	active, _ = newTestEngine().Correlate(inputFor(snap, nil, t0))
	issue = findByKind(active, models.KindNetworkQualityDegradation)
	require.NotNil(t, issue)
	assert.Equal(t, 85, issue.Confidence)
}

func TestSingleSignalFloor(t *testing.T) {
	raw := []models.Signal{{
		Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "device_added"},
		Observation: "Interface usb0 connected",
		Value:       models.TextValue("usb0"),
		Timestamp:   t0,
	}}
	snap := baseSnapshot(t0)

	active, _ := newTestEngine().Correlate(inputFor(snap, raw, t0))
	issue := findByKind(active, models.KindDeviceHotplug)
	require.NotNil(t, issue)
	assert.Equal(t, models.SeverityInfo, issue.Severity)
	assert.Equal(t, DefaultConfig().SingleSignalConfidence, issue.Confidence)

	// Lowering the floor below the threshold suppresses single-signal issues.
	engine := NewEngine(Config{MinConfidence: 70, SingleSignalConfidence: 60}, nil)
	active, _ = engine.Correlate(inputFor(snap, raw, t0))
	assert.Nil(t, findByKind(active, models.KindDeviceHotplug))
}

func TestStableCorrelationIDAndFirstSeen(t *testing.T) {
	engine := newTestEngine()
	snap := baseSnapshot(t0)
	snap.Disks[0].UsedPercent = 96

	active1, _ := engine.Correlate(inputFor(snap, nil, t0))
	require.Len(t, active1, 1)

	t1 := t0.Add(time.Minute)
	snap2 := baseSnapshot(t1)
	snap2.Disks[0].UsedPercent = 97
	active2, _ := engine.Correlate(inputFor(snap2, nil, t1))
	require.Len(t, active2, 1)

	assert.Equal(t, active1[0].CorrelationID, active2[0].CorrelationID)
	assert.Equal(t, t0, active2[0].FirstSeen)
	assert.Equal(t, t1, active2[0].LastSeen)
}

func TestRecoveredIssuesReported(t *testing.T) {
	engine := newTestEngine()
	snap := baseSnapshot(t0)
	snap.Disks[0].UsedPercent = 96

	active, recovered := engine.Correlate(inputFor(snap, nil, t0))
	require.Len(t, active, 1)
	assert.Empty(t, recovered)

	t1 := t0.Add(time.Minute)
	active, recovered = engine.Correlate(inputFor(baseSnapshot(t1), nil, t1))
	assert.Empty(t, active)
	require.Len(t, recovered, 1)
	assert.Equal(t, "/", recovered[0].Subject)
	assert.Equal(t, t0, recovered[0].FirstSeen)
}

func TestActiveSortedWorstFirst(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.Disks[0].UsedPercent = 96 // critical
	snap.Memory.UsedPercent = 85   // warning

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))
	require.Len(t, active, 2)
	assert.Equal(t, models.SeverityCritical, active[0].Severity)
	assert.Equal(t, models.SeverityWarning, active[1].Severity)
}

func TestMaxTrackedTruncates(t *testing.T) {
	engine := NewEngine(Config{MinConfidence: 70, SingleSignalConfidence: 70, MaxTracked: 1}, nil)
	snap := baseSnapshot(t0)
	snap.Disks[0].UsedPercent = 96
	snap.Memory.UsedPercent = 85

	active, _ := engine.Correlate(inputFor(snap, nil, t0))
	require.Len(t, active, 1)
	assert.Equal(t, models.SeverityCritical, active[0].Severity)
}

func TestMemoryPressureWithoutSwap(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.Memory = &models.MemoryTelemetry{UsedPercent: 92, SwapConfigured: false}

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))
	issue := findByKind(active, models.KindMemoryPressure)
	require.NotNil(t, issue)
	require.NotNil(t, issue.RootCause.MemoryPressure)
	assert.Nil(t, issue.RootCause.MemoryPressure.SwapPercent)
}

func TestCPUOverloadNamesRunawayProcess(t *testing.T) {
	snap := baseSnapshot(t0)
	snap.CPU = &models.CPUTelemetry{
		LoadPerCore:          1.9,
		CoreCount:            8,
		TopProcess:           "ffmpeg",
		TopProcessCPUPercent: 380,
	}

	active, _ := newTestEngine().Correlate(inputFor(snap, nil, t0))
	issue := findByKind(active, models.KindCPUOverload)
	require.NotNil(t, issue)
	assert.Equal(t, models.SeverityCritical, issue.Severity)
	require.NotNil(t, issue.RootCause.CPUOverload)
	assert.Equal(t, "ffmpeg", issue.RootCause.CPUOverload.RunawayProcess)
	assert.Equal(t, 95, issue.Confidence) // 80 base +15 runaway
}
