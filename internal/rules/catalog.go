package rules

import (
	"fmt"
	"strings"

	"github.com/vigil-sys/vigil/internal/models"
)

// Rule ids, shared with the correlation matrix.
const (
	RuleDiskSpaceCritical       = "disk_space_critical"
	RuleDiskSpaceWarning        = "disk_space_warning"
	RuleInodeExhaustion         = "inode_exhaustion"
	RuleMemoryPressureCritical  = "memory_pressure_critical"
	RuleMemoryPressureWarning   = "memory_pressure_warning"
	RuleCPUOverloadCritical     = "cpu_overload_critical"
	RuleCPUHighLoad             = "cpu_high_load"
	RuleFailedServices          = "failed_services"
	RuleServiceRestartLoop      = "service_restart_loop"
	RuleJournalErrorBurst       = "journal_error_burst"
	RuleHighPacketLoss          = "high_packet_loss"
	RuleHighLatency             = "high_latency"
	RuleInterfaceErrors         = "interface_errors"
	RuleDuplicateDefaultRoutes  = "duplicate_default_routes"
	RuleNetworkPriorityMismatch = "network_priority_mismatch"
	RuleKernelBootErrors        = "kernel_boot_errors"
)

// Thresholds parameterises the diagnostic catalog. All values have nominal
// defaults; they are loaded from configuration so the catalog itself stays
// fixed data.
type Thresholds struct {
	DiskWarningPercent        float64 `yaml:"diskWarningPercent"`
	DiskCriticalPercent       float64 `yaml:"diskCriticalPercent"`
	InodeWarningPercent       float64 `yaml:"inodeWarningPercent"`
	MemoryWarningPercent      float64 `yaml:"memoryWarningPercent"`
	MemoryCriticalPercent     float64 `yaml:"memoryCriticalPercent"`
	LoadWarningPerCore        float64 `yaml:"loadWarningPerCore"`
	LoadCriticalPerCore       float64 `yaml:"loadCriticalPerCore"`
	RestartLoopCount          int     `yaml:"restartLoopCount"`
	JournalErrorBurst         int     `yaml:"journalErrorBurst"`
	PacketLossWarningPercent  float64 `yaml:"packetLossWarningPercent"`
	LatencyWarningMs          float64 `yaml:"latencyWarningMs"`
	InterfaceErrorRatePercent float64 `yaml:"interfaceErrorRatePercent"`
}

// DefaultThresholds returns the nominal bounds of the catalog.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskWarningPercent:        85,
		DiskCriticalPercent:       95,
		InodeWarningPercent:       90,
		MemoryWarningPercent:      80,
		MemoryCriticalPercent:     90,
		LoadWarningPerCore:        1.0,
		LoadCriticalPerCore:       1.75,
		RestartLoopCount:          3,
		JournalErrorBurst:         50,
		PacketLossWarningPercent:  5,
		LatencyWarningMs:          150,
		InterfaceErrorRatePercent: 1,
	}
}

// DiagnosticRule is one entry of the fixed catalog: an id, a severity, and
// a pure predicate over the snapshot. Evaluate returns nil when the rule
// does not fire or its telemetry is missing.
type DiagnosticRule struct {
	ID       string
	Severity models.Severity
	Evaluate func(*models.TelemetrySnapshot) *models.Insight
}

// Catalog builds the fixed diagnostic rule list for the given thresholds.
// Order is stable; every rule is independent of the others.
func Catalog(t Thresholds) []DiagnosticRule {
	return []DiagnosticRule{
		{ID: RuleDiskSpaceCritical, Severity: models.SeverityCritical, Evaluate: diskSpaceRule(t, models.SeverityCritical)},
		{ID: RuleDiskSpaceWarning, Severity: models.SeverityWarning, Evaluate: diskSpaceRule(t, models.SeverityWarning)},
		{ID: RuleInodeExhaustion, Severity: models.SeverityWarning, Evaluate: inodeRule(t)},
		{ID: RuleMemoryPressureCritical, Severity: models.SeverityCritical, Evaluate: memoryRule(t, models.SeverityCritical)},
		{ID: RuleMemoryPressureWarning, Severity: models.SeverityWarning, Evaluate: memoryRule(t, models.SeverityWarning)},
		{ID: RuleCPUOverloadCritical, Severity: models.SeverityCritical, Evaluate: cpuRule(t, models.SeverityCritical)},
		{ID: RuleCPUHighLoad, Severity: models.SeverityWarning, Evaluate: cpuRule(t, models.SeverityWarning)},
		{ID: RuleFailedServices, Severity: models.SeverityCritical, Evaluate: failedServicesRule()},
		{ID: RuleServiceRestartLoop, Severity: models.SeverityWarning, Evaluate: restartLoopRule(t)},
		{ID: RuleJournalErrorBurst, Severity: models.SeverityWarning, Evaluate: journalBurstRule(t)},
		{ID: RuleHighPacketLoss, Severity: models.SeverityWarning, Evaluate: packetLossRule(t)},
		{ID: RuleHighLatency, Severity: models.SeverityWarning, Evaluate: latencyRule(t)},
		{ID: RuleInterfaceErrors, Severity: models.SeverityWarning, Evaluate: interfaceErrorsRule(t)},
		{ID: RuleDuplicateDefaultRoutes, Severity: models.SeverityWarning, Evaluate: duplicateRoutesRule()},
		{ID: RuleNetworkPriorityMismatch, Severity: models.SeverityWarning, Evaluate: priorityMismatchRule()},
		{ID: RuleKernelBootErrors, Severity: models.SeverityWarning, Evaluate: kernelBootErrorsRule()},
	}
}

func ruleSignal(ruleID, observation string, value models.SignalValue, snap *models.TelemetrySnapshot) models.Signal {
	return models.Signal{
		Source:      models.SignalSource{Kind: models.SourceRule, Ref: ruleID},
		Observation: observation,
		Value:       value,
		Timestamp:   snap.Timestamp,
	}
}

func diskSpaceRule(t Thresholds, sev models.Severity) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if len(snap.Disks) == 0 {
			return nil
		}
		low, high := t.DiskWarningPercent, t.DiskCriticalPercent
		if sev == models.SeverityCritical {
			low, high = t.DiskCriticalPercent, 101
		}
		var evidence []models.Signal
		var mounts []string
		ruleID := RuleDiskSpaceWarning
		if sev == models.SeverityCritical {
			ruleID = RuleDiskSpaceCritical
		}
		for _, d := range snap.Disks {
			pct, ok := normalizePercent(d.UsedPercent)
			if !ok || pct < low || pct >= high {
				continue
			}
			mounts = append(mounts, d.Mountpoint)
			evidence = append(evidence, ruleSignal(ruleID,
				fmt.Sprintf("Disk usage on %s is %.0f%%", d.Mountpoint, pct),
				models.PercentValue(pct), snap))
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   ruleID,
			Severity: sev,
			Summary:  fmt.Sprintf("Disk usage high on %s", strings.Join(mounts, ", ")),
			Evidence: evidence,
		}
	}
}

func inodeRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if len(snap.Disks) == 0 {
			return nil
		}
		var evidence []models.Signal
		var mounts []string
		for _, d := range snap.Disks {
			pct, ok := normalizePercent(d.InodesUsedPercent)
			if !ok || pct < t.InodeWarningPercent {
				continue
			}
			mounts = append(mounts, d.Mountpoint)
			evidence = append(evidence, ruleSignal(RuleInodeExhaustion,
				fmt.Sprintf("Inode usage on %s is %.0f%%", d.Mountpoint, pct),
				models.PercentValue(pct), snap))
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleInodeExhaustion,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("Inodes nearly exhausted on %s", strings.Join(mounts, ", ")),
			Evidence: evidence,
		}
	}
}

func memoryRule(t Thresholds, sev models.Severity) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if snap.Memory == nil {
			return nil
		}
		pct, ok := normalizePercent(snap.Memory.UsedPercent)
		if !ok {
			return nil
		}
		low, high := t.MemoryWarningPercent, t.MemoryCriticalPercent
		ruleID := RuleMemoryPressureWarning
		if sev == models.SeverityCritical {
			low, high = t.MemoryCriticalPercent, 101
			ruleID = RuleMemoryPressureCritical
		}
		if pct < low || pct >= high {
			return nil
		}
		evidence := []models.Signal{ruleSignal(ruleID,
			fmt.Sprintf("Memory usage at %.1f%%", pct),
			models.PercentValue(pct), snap)}
		if snap.Memory.SwapConfigured {
			if swap, ok := normalizePercent(snap.Memory.SwapUsedPercent); ok {
				evidence = append(evidence, ruleSignal(ruleID,
					fmt.Sprintf("Swap usage at %.1f%%", swap),
					models.PercentValue(swap), snap))
			}
		}
		return &models.Insight{
			RuleID:   ruleID,
			Severity: sev,
			Summary:  fmt.Sprintf("Memory usage at %.1f%%", pct),
			Evidence: evidence,
		}
	}
}

func cpuRule(t Thresholds, sev models.Severity) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if snap.CPU == nil || snap.CPU.LoadPerCore < 0 {
			return nil
		}
		load := snap.CPU.LoadPerCore
		low, high := t.LoadWarningPerCore, t.LoadCriticalPerCore
		ruleID := RuleCPUHighLoad
		if sev == models.SeverityCritical {
			low, high = t.LoadCriticalPerCore, 1e9
			ruleID = RuleCPUOverloadCritical
		}
		if load <= low || load > high {
			return nil
		}
		evidence := []models.Signal{ruleSignal(ruleID,
			fmt.Sprintf("Load per core at %.2f", load),
			models.CountValue(int(load*100)), snap)}
		if snap.CPU.TopProcess != "" {
			evidence = append(evidence, ruleSignal(ruleID,
				fmt.Sprintf("Top consumer %s at %.1f%% CPU", snap.CPU.TopProcess, snap.CPU.TopProcessCPUPercent),
				models.PercentValue(snap.CPU.TopProcessCPUPercent), snap))
		}
		return &models.Insight{
			RuleID:   ruleID,
			Severity: sev,
			Summary:  fmt.Sprintf("CPU load at %.2f per core", load),
			Evidence: evidence,
		}
	}
}

func failedServicesRule() func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if len(snap.Services) == 0 {
			return nil
		}
		var evidence []models.Signal
		var names []string
		for _, svc := range snap.Services {
			if svc.State != "failed" && svc.State != "degraded" {
				continue
			}
			names = append(names, svc.Name)
			evidence = append(evidence, ruleSignal(RuleFailedServices,
				fmt.Sprintf("Service %s is %s", svc.Name, svc.State),
				models.TextValue(svc.State), snap))
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleFailedServices,
			Severity: models.SeverityCritical,
			Summary:  fmt.Sprintf("%d service(s) failed", len(names)),
			Details:  strings.Join(names, "\n"),
			Evidence: evidence,
		}
	}
}

func restartLoopRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if len(snap.Services) == 0 {
			return nil
		}
		var evidence []models.Signal
		var names []string
		for _, svc := range snap.Services {
			if svc.RestartsLastHour <= t.RestartLoopCount {
				continue
			}
			names = append(names, svc.Name)
			evidence = append(evidence, ruleSignal(RuleServiceRestartLoop,
				fmt.Sprintf("Service %s restarted %d times in the last hour", svc.Name, svc.RestartsLastHour),
				models.CountValue(svc.RestartsLastHour), snap))
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleServiceRestartLoop,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("Restart loop on %s", strings.Join(names, ", ")),
			Evidence: evidence,
		}
	}
}

func journalBurstRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if snap.Journal == nil || snap.Journal.ErrorsLastHour < t.JournalErrorBurst {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleJournalErrorBurst,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("%d journal errors in the last hour", snap.Journal.ErrorsLastHour),
			Evidence: []models.Signal{{
				Source:      models.SignalSource{Kind: models.SourceJournal, Ref: "errors"},
				Observation: fmt.Sprintf("%d error-level entries in the last hour", snap.Journal.ErrorsLastHour),
				Value:       models.CountValue(snap.Journal.ErrorsLastHour),
				Timestamp:   snap.Timestamp,
			}},
		}
	}
}

func packetLossRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		var evidence []models.Signal
		worst := 0.0
		for _, iface := range snap.Network {
			if iface.PacketLossPercent == nil {
				continue
			}
			loss, ok := normalizePercent(*iface.PacketLossPercent)
			if !ok || loss <= t.PacketLossWarningPercent {
				continue
			}
			if loss > worst {
				worst = loss
			}
			evidence = append(evidence, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "packet_loss"},
				Observation: fmt.Sprintf("Interface %s packet loss %.1f%%", iface.Name, loss),
				Value:       models.PercentValue(loss),
				Timestamp:   snap.Timestamp,
			})
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleHighPacketLoss,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("High packet loss detected: %.1f%%", worst),
			Evidence: evidence,
		}
	}
}

func latencyRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		var evidence []models.Signal
		worst := 0.0
		for _, iface := range snap.Network {
			if iface.LatencyMs == nil || *iface.LatencyMs < 0 || *iface.LatencyMs <= t.LatencyWarningMs {
				continue
			}
			if *iface.LatencyMs > worst {
				worst = *iface.LatencyMs
			}
			evidence = append(evidence, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "latency"},
				Observation: fmt.Sprintf("Interface %s latency %.0fms", iface.Name, *iface.LatencyMs),
				Value:       models.LatencyValue(*iface.LatencyMs),
				Timestamp:   snap.Timestamp,
			})
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleHighLatency,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("High latency detected: %.0fms", worst),
			Evidence: evidence,
		}
	}
}

func interfaceErrorsRule(t Thresholds) func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		var evidence []models.Signal
		for _, iface := range snap.Network {
			rate := iface.ErrorRatePercent()
			if rate <= t.InterfaceErrorRatePercent {
				continue
			}
			evidence = append(evidence, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "interface_errors"},
				Observation: fmt.Sprintf("Interface %s has %.1f%% error rate", iface.Name, rate),
				Value:       models.PercentValue(rate),
				Timestamp:   snap.Timestamp,
			})
		}
		if len(evidence) == 0 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleInterfaceErrors,
			Severity: models.SeverityWarning,
			Summary:  "Interface errors above nominal bounds",
			Evidence: evidence,
		}
	}
}

func duplicateRoutesRule() func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		var holders []string
		for _, iface := range snap.Network {
			if iface.HasDefaultRoute {
				holders = append(holders, iface.Name)
			}
		}
		if len(holders) < 2 {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleDuplicateDefaultRoutes,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("%d default routes detected", len(holders)),
			Details:  strings.Join(holders, ", "),
			Evidence: []models.Signal{{
				Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "duplicate_default_routes"},
				Observation: fmt.Sprintf("Default route present on %s", strings.Join(holders, ", ")),
				Value:       models.CountValue(len(holders)),
				Timestamp:   snap.Timestamp,
			}},
		}
	}
}

func priorityMismatchRule() func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		var slow, fast *models.InterfaceTelemetry
		for idx := range snap.Network {
			iface := &snap.Network[idx]
			if iface.SpeedMbps <= 0 {
				continue
			}
			if iface.HasDefaultRoute {
				if slow == nil || iface.SpeedMbps < slow.SpeedMbps {
					slow = iface
				}
			} else if fast == nil || iface.SpeedMbps > fast.SpeedMbps {
				fast = iface
			}
		}
		if slow == nil || fast == nil || fast.SpeedMbps <= slow.SpeedMbps {
			return nil
		}
		return &models.Insight{
			RuleID:   RuleNetworkPriorityMismatch,
			Severity: models.SeverityWarning,
			Summary: fmt.Sprintf("%s (%d Mbps) has the default route while %s (%d Mbps) does not",
				slow.Name, slow.SpeedMbps, fast.Name, fast.SpeedMbps),
			Evidence: []models.Signal{{
				Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "priority_mismatch"},
				Observation: fmt.Sprintf("Routing prefers %s over faster %s", slow.Name, fast.Name),
				Value:       models.TextValue(slow.Name + "<" + fast.Name),
				Timestamp:   snap.Timestamp,
			}},
		}
	}
}

func kernelBootErrorsRule() func(*models.TelemetrySnapshot) *models.Insight {
	return func(snap *models.TelemetrySnapshot) *models.Insight {
		if snap.Journal == nil || (snap.Journal.BootErrors == 0 && len(snap.Journal.DriverFailures) == 0) {
			return nil
		}
		evidence := []models.Signal{{
			Source:      models.SignalSource{Kind: models.SourceJournal, Ref: "kernel"},
			Observation: fmt.Sprintf("%d kernel errors since boot", snap.Journal.BootErrors),
			Value:       models.CountValue(snap.Journal.BootErrors),
			Timestamp:   snap.Timestamp,
		}}
		for _, drv := range snap.Journal.DriverFailures {
			evidence = append(evidence, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceJournal, Ref: "kernel"},
				Observation: "Driver failure: " + drv,
				Value:       models.TextValue(drv),
				Timestamp:   snap.Timestamp,
			})
		}
		return &models.Insight{
			RuleID:   RuleKernelBootErrors,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("%d kernel errors since boot", snap.Journal.BootErrors),
			Details:  strings.Join(snap.Journal.DriverFailures, "\n"),
			Evidence: evidence,
		}
	}
}

// normalizePercent validates a percentage reading. Values above 100 are
// clamped; negative values are treated as malformed and ignored.
func normalizePercent(v float64) (float64, bool) {
	if v < 0 {
		return 0, false
	}
	if v > 100 {
		return 100, true
	}
	return v, true
}
