package correlation

import (
	"fmt"
	"strings"

	"github.com/vigil-sys/vigil/internal/models"
	"github.com/vigil-sys/vigil/internal/rules"
)

// Matrix row ids. The slice order in matrix() is the priority order:
// critical system failures first, then resource exhaustion, then network
// degradation, then device context.
const (
	RuleServiceConfigError = "SVC-003"
	RuleServiceFlapping    = "SVC-001"
	RuleDiskPressure       = "DISK-001"
	RuleKernelRegression   = "SYS-001"
	RuleMemoryPressure     = "RES-001"
	RuleCPUOverload        = "RES-002"
	RuleRoutingConflict    = "NET-001"
	RulePriorityMismatch   = "NET-002"
	RuleQualityDegradation = "NET-003"
	RuleDeviceHotplug      = "DEV-001"
)

func matrix() []matrixRule {
	return []matrixRule{
		{ID: RuleServiceConfigError, Match: matchServiceConfigError},
		{ID: RuleServiceFlapping, Match: matchServiceFlapping},
		{ID: RuleDiskPressure, Match: matchDiskPressure},
		{ID: RuleKernelRegression, Match: matchKernelRegression},
		{ID: RuleMemoryPressure, Match: matchMemoryPressure},
		{ID: RuleCPUOverload, Match: matchCPUOverload},
		{ID: RuleRoutingConflict, Match: matchRoutingConflict},
		{ID: RulePriorityMismatch, Match: matchPriorityMismatch},
		{ID: RuleQualityDegradation, Match: matchQualityDegradation},
		{ID: RuleDeviceHotplug, Match: matchDeviceHotplug},
	}
}

func findInsight(in Input, ids ...string) *models.Insight {
	for idx := range in.Insights {
		for _, id := range ids {
			if in.Insights[idx].RuleID == id {
				return &in.Insights[idx]
			}
		}
	}
	return nil
}

func rawSignals(in Input, ref string) []models.Signal {
	var out []models.Signal
	for _, sig := range in.Raw {
		if sig.Source.Ref == ref {
			out = append(out, sig)
		}
	}
	return out
}

func matchServiceConfigError(in Input) []candidate {
	insight := findInsight(in, rules.RuleFailedServices)
	if insight == nil || in.Snapshot == nil {
		return nil
	}
	restartLoop := findInsight(in, rules.RuleServiceRestartLoop)

	var out []candidate
	for _, svc := range in.Snapshot.Services {
		if svc.State != "failed" && svc.State != "degraded" {
			continue
		}
		errMsg := svc.LastError
		if errMsg == "" {
			errMsg = "service entered " + svc.State + " state"
		}
		signals := []models.Signal{{
			Source:      models.SignalSource{Kind: models.SourceHealth, Ref: "systemd"},
			Observation: fmt.Sprintf("Service %s is %s", svc.Name, svc.State),
			Value:       models.TextValue(svc.State),
			Timestamp:   in.Now,
		}}
		conf := 80
		if restartLoop != nil && svc.RestartsLastHour > 0 {
			signals = append(signals, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceRule, Ref: rules.RuleServiceRestartLoop},
				Observation: fmt.Sprintf("Service %s restarted %d times in the last hour", svc.Name, svc.RestartsLastHour),
				Value:       models.CountValue(svc.RestartsLastHour),
				Timestamp:   in.Now,
			})
			conf += 10
		}
		out = append(out, candidate{
			Subject: svc.Name,
			RootCause: models.RootCause{
				Kind: models.KindServiceConfigError,
				ServiceConfigError: &models.ServiceConfigError{
					ServiceName:  svc.Name,
					ErrorMessage: errMsg,
					ExitCode:     svc.ExitCode,
				},
			},
			Signals:  signals,
			Severity: models.SeverityCritical,
			Summary:  fmt.Sprintf("Service failure: %s", svc.Name),
			Details: fmt.Sprintf("Service %s is in %s state. This prevents the functionality it provides. "+
				"Check its logs and unit definition for configuration errors or missing dependencies.", svc.Name, svc.State),
			Remediation: []string{
				"systemctl status " + svc.Name,
				fmt.Sprintf("journalctl -u %s -n 50 --no-pager", svc.Name),
				"systemctl cat " + svc.Name,
				"sudo systemctl restart " + svc.Name,
			},
			Confidence: conf,
		})
	}
	return out
}

func matchServiceFlapping(in Input) []candidate {
	insight := findInsight(in, rules.RuleServiceRestartLoop)
	if insight == nil || in.Snapshot == nil {
		return nil
	}

	var out []candidate
	for _, svc := range in.Snapshot.Services {
		if svc.RestartsLastHour <= 3 {
			continue
		}
		conf := 75 + 5*min(svc.RestartsLastHour-3, 4)
		severity := models.SeverityWarning
		if svc.RestartsLastHour > 9 {
			severity = models.SeverityCritical
		}
		out = append(out, candidate{
			Subject: svc.Name,
			RootCause: models.RootCause{
				Kind: models.KindServiceFlapping,
				ServiceFlapping: &models.ServiceFlapping{
					ServiceName:   svc.Name,
					RestartCount:  svc.RestartsLastHour,
					WindowMinutes: 60,
				},
			},
			Signals: []models.Signal{
				{
					Source:      models.SignalSource{Kind: models.SourceRule, Ref: rules.RuleServiceRestartLoop},
					Observation: fmt.Sprintf("Service %s restarted %d times in the last hour", svc.Name, svc.RestartsLastHour),
					Value:       models.CountValue(svc.RestartsLastHour),
					Timestamp:   in.Now,
				},
				{
					Source:      models.SignalSource{Kind: models.SourceHealth, Ref: "systemd"},
					Observation: fmt.Sprintf("Service %s state: %s", svc.Name, svc.State),
					Value:       models.TextValue(svc.State),
					Timestamp:   in.Now,
				},
			},
			Severity: severity,
			Summary:  fmt.Sprintf("Service flapping: %s (%d restarts in 60min)", svc.Name, svc.RestartsLastHour),
			Details: fmt.Sprintf("Service %s is restarting repeatedly, which indicates dependency issues, "+
				"configuration errors, or resource constraints rather than a clean failure.", svc.Name),
			Remediation: []string{
				"systemctl status " + svc.Name,
				fmt.Sprintf("journalctl -u %s --since '1 hour ago' --no-pager", svc.Name),
				"systemctl list-dependencies " + svc.Name,
			},
			Confidence: conf,
		})
	}
	return out
}

func matchDiskPressure(in Input) []candidate {
	critical := findInsight(in, rules.RuleDiskSpaceCritical)
	warning := findInsight(in, rules.RuleDiskSpaceWarning)
	if (critical == nil && warning == nil) || in.Snapshot == nil {
		return nil
	}
	inodes := findInsight(in, rules.RuleInodeExhaustion)
	growth := rawSignals(in, "log_growth")

	var out []candidate
	for _, disk := range in.Snapshot.Disks {
		if disk.UsedPercent < 85 {
			continue
		}
		usage := int(disk.UsedPercent)
		if usage > 100 {
			usage = 100
		}
		inodeExhaustion := inodes != nil && disk.InodesUsedPercent >= 90
		severity := models.SeverityWarning
		if critical != nil && disk.UsedPercent >= 95 {
			severity = models.SeverityCritical
		}

		signals := []models.Signal{{
			Source:      models.SignalSource{Kind: models.SourceRule, Ref: rules.RuleDiskSpaceWarning},
			Observation: fmt.Sprintf("Disk usage on %s is %d%%", disk.Mountpoint, usage),
			Value:       models.PercentValue(float64(usage)),
			Timestamp:   in.Now,
		}}
		conf := 85
		if inodeExhaustion {
			signals = append(signals, models.Signal{
				Source:      models.SignalSource{Kind: models.SourceRule, Ref: rules.RuleInodeExhaustion},
				Observation: fmt.Sprintf("Inode usage on %s is %.0f%%", disk.Mountpoint, disk.InodesUsedPercent),
				Value:       models.PercentValue(disk.InodesUsedPercent),
				Timestamp:   in.Now,
			})
			conf += 5
		}
		if len(growth) > 0 {
			signals = append(signals, growth...)
			conf += 5
		}

		summary := fmt.Sprintf("Disk pressure on %s (%d%% full)", disk.Mountpoint, usage)
		if inodeExhaustion {
			summary = fmt.Sprintf("Disk pressure on %s (%d%% full, inodes exhausted)", disk.Mountpoint, usage)
		}
		urgency := "approaching capacity"
		if usage >= 95 {
			urgency = "critically full"
		}
		out = append(out, candidate{
			Subject: disk.Mountpoint,
			RootCause: models.RootCause{
				Kind: models.KindDiskPressure,
				DiskPressure: &models.DiskPressure{
					Mountpoint:      disk.Mountpoint,
					UsagePercent:    usage,
					InodeExhaustion: inodeExhaustion,
				},
			},
			Signals:  signals,
			Severity: severity,
			Summary:  summary,
			Details: fmt.Sprintf("Filesystem %s is %s. Common causes include package cache buildup, "+
				"large log files, and accumulated temporary files.", disk.Mountpoint, urgency),
			Remediation: []string{
				"df -h " + disk.Mountpoint,
				"df -i " + disk.Mountpoint,
				fmt.Sprintf("du -h %s | sort -h | tail -20", disk.Mountpoint),
				"sudo pacman -Sc",
				"sudo journalctl --vacuum-size=100M",
			},
			Confidence: conf,
		})
	}
	return out
}

func matchKernelRegression(in Input) []candidate {
	insight := findInsight(in, rules.RuleKernelBootErrors)
	if insight == nil || in.Snapshot == nil || in.Snapshot.Journal == nil {
		return nil
	}
	journal := in.Snapshot.Journal
	severity := models.SeverityWarning
	if journal.BootErrors > 10 || len(journal.DriverFailures) > 2 {
		severity = models.SeverityCritical
	}
	conf := 75 + 5*min(len(journal.DriverFailures), 3)
	return []candidate{{
		Subject: "kernel",
		RootCause: models.RootCause{
			Kind: models.KindKernelRegression,
			KernelRegression: &models.KernelRegression{
				BootErrors:     journal.BootErrors,
				DriverFailures: journal.DriverFailures,
			},
		},
		Signals:  insight.Evidence,
		Severity: severity,
		Summary:  fmt.Sprintf("Kernel regression suspected: %d boot errors", journal.BootErrors),
		Details: "Kernel-level errors were logged during boot. After a recent kernel upgrade this suggests " +
			"a regression; check kernel logs and consider booting the previous kernel.",
		Remediation: []string{
			"journalctl -k -b -p err --no-pager",
			"dmesg | tail -50",
			"uname -r",
		},
		Confidence: conf,
	}}
}

func matchMemoryPressure(in Input) []candidate {
	insight := findInsight(in, rules.RuleMemoryPressureCritical, rules.RuleMemoryPressureWarning)
	if insight == nil || in.Snapshot == nil || in.Snapshot.Memory == nil {
		return nil
	}
	mem := in.Snapshot.Memory

	var swap *float64
	conf := 85
	if mem.SwapConfigured {
		v := mem.SwapUsedPercent
		swap = &v
		if v > 50 {
			conf += 5
		}
	}
	summary := fmt.Sprintf("Memory pressure: %.1f%% RAM (no swap)", mem.UsedPercent)
	if swap != nil {
		summary = fmt.Sprintf("Memory pressure: %.1f%% RAM, %.1f%% swap", mem.UsedPercent, *swap)
	}
	return []candidate{{
		Subject: "memory",
		RootCause: models.RootCause{
			Kind: models.KindMemoryPressure,
			MemoryPressure: &models.MemoryPressure{
				RAMPercent:  mem.UsedPercent,
				SwapPercent: swap,
			},
		},
		Signals:  insight.Evidence,
		Severity: insight.Severity,
		Summary:  summary,
		Details: fmt.Sprintf("System RAM usage is at %.1f%%. Sustained pressure causes slowdown, application "+
			"crashes, and OOM killer events. Identify memory-hungry processes and consider adding swap.", mem.UsedPercent),
		Remediation: []string{
			"free -h",
			"swapon --show",
			"ps aux --sort=-%mem | head -10",
			"journalctl -p err | grep -i oom",
		},
		Confidence: conf,
	}}
}

func matchCPUOverload(in Input) []candidate {
	insight := findInsight(in, rules.RuleCPUOverloadCritical, rules.RuleCPUHighLoad)
	if insight == nil || in.Snapshot == nil || in.Snapshot.CPU == nil {
		return nil
	}
	cpu := in.Snapshot.CPU

	runaway := ""
	conf := 80
	if cpu.TopProcess != "" && cpu.TopProcessCPUPercent >= 50 {
		runaway = cpu.TopProcess
		conf += 15
	}
	summary := fmt.Sprintf("CPU overload: %.1f load per core", cpu.LoadPerCore)
	if runaway != "" {
		summary = fmt.Sprintf("CPU overload: %.1f load per core (process: %s)", cpu.LoadPerCore, runaway)
	}
	return []candidate{{
		Subject: "cpu",
		RootCause: models.RootCause{
			Kind: models.KindCPUOverload,
			CPUOverload: &models.CPUOverload{
				LoadPerCore:    cpu.LoadPerCore,
				RunawayProcess: runaway,
			},
		},
		Signals:  insight.Evidence,
		Severity: insight.Severity,
		Summary:  summary,
		Details: fmt.Sprintf("CPU load is %.1f per core. This causes system slowdown and can lead to "+
			"unresponsiveness. Identify and address CPU-intensive processes.", cpu.LoadPerCore),
		Remediation: []string{
			"uptime",
			"top -o %CPU",
			"ps aux --sort=-%cpu | head -10",
		},
		Confidence: conf,
	}}
}

func matchRoutingConflict(in Input) []candidate {
	insight := findInsight(in, rules.RuleDuplicateDefaultRoutes)
	raw := rawSignals(in, "duplicate_default_routes")
	if insight == nil && len(raw) == 0 {
		return nil
	}

	var holders []string
	if in.Snapshot != nil {
		for _, iface := range in.Snapshot.Network {
			if iface.HasDefaultRoute {
				holders = append(holders, iface.Name)
			}
		}
	}
	if len(holders) < 2 {
		return nil
	}

	var signals []models.Signal
	if insight != nil {
		signals = append(signals, insight.Evidence...)
	}
	signals = append(signals, raw...)
	conf := 80
	if findInsight(in, rules.RuleHighPacketLoss, rules.RuleInterfaceErrors) != nil {
		conf += 10
	}
	severity := models.SeverityWarning
	if conf > 85 {
		severity = models.SeverityCritical
	}
	return []candidate{{
		Subject: "routing",
		RootCause: models.RootCause{
			Kind: models.KindNetworkRoutingConflict,
			RoutingConflict: &models.NetworkRoutingConflict{
				DuplicateRoutes: holders,
			},
		},
		Signals:  signals,
		Severity: severity,
		Summary:  fmt.Sprintf("Duplicate default routes detected on interfaces: %s", strings.Join(holders, ", ")),
		Details: "Multiple default routes are configured, causing unpredictable routing behavior. This can " +
			"result in connection timeouts, inconsistent DNS resolution, and VPN/firewall issues. Only one " +
			"default route should be active.",
		Remediation: []string{
			"ip route",
			"nmcli device status",
			"sudo ip route del default via <gateway> dev <interface>",
			"sudo systemctl restart NetworkManager",
		},
		Confidence: conf,
	}}
}

func matchPriorityMismatch(in Input) []candidate {
	insight := findInsight(in, rules.RuleNetworkPriorityMismatch)
	if insight == nil || in.Snapshot == nil {
		return nil
	}
	var slow, fast *models.InterfaceTelemetry
	for idx := range in.Snapshot.Network {
		iface := &in.Snapshot.Network[idx]
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
	signals := append([]models.Signal{}, insight.Evidence...)
	signals = append(signals, models.Signal{
		Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "link_speed"},
		Observation: fmt.Sprintf("%s link speed %d Mbps, %s link speed %d Mbps", slow.Name, slow.SpeedMbps, fast.Name, fast.SpeedMbps),
		Value:       models.CountValue(fast.SpeedMbps - slow.SpeedMbps),
		Timestamp:   in.Now,
	})
	return []candidate{{
		Subject: "routing",
		RootCause: models.RootCause{
			Kind: models.KindNetworkPriorityMismatch,
			PriorityMismatch: &models.NetworkPriorityMismatch{
				SlowInterface: slow.Name,
				FastInterface: fast.Name,
				SlowSpeedMbps: slow.SpeedMbps,
				FastSpeedMbps: fast.SpeedMbps,
			},
		},
		Signals:  signals,
		Severity: models.SeverityWarning,
		Summary: fmt.Sprintf("Network priority issue: %s (%dMbps) prioritized over %s (%dMbps)",
			slow.Name, slow.SpeedMbps, fast.Name, fast.SpeedMbps),
		Details: fmt.Sprintf("The system routes through the slower %s connection (%d Mbps) instead of the "+
			"faster %s connection (%d Mbps). Interface priority is assigned by type, not speed.",
			slow.Name, slow.SpeedMbps, fast.Name, fast.SpeedMbps),
		Remediation: []string{
			"nmcli connection show",
			"ip route",
			fmt.Sprintf("nmcli connection modify %s ipv4.route-metric 100", fast.Name),
			fmt.Sprintf("nmcli connection modify %s ipv4.route-metric 200", slow.Name),
		},
		Confidence: 90,
	}}
}

func matchQualityDegradation(in Input) []candidate {
	// A routing conflict already explains degraded quality.
	if findInsight(in, rules.RuleDuplicateDefaultRoutes) != nil {
		return nil
	}
	loss := findInsight(in, rules.RuleHighPacketLoss)
	latency := findInsight(in, rules.RuleHighLatency)
	ifaceErrs := findInsight(in, rules.RuleInterfaceErrors)
	if loss == nil && latency == nil && ifaceErrs == nil {
		return nil
	}

	var lossPct, latencyMs *float64
	var errCount *int
	var signals []models.Signal
	kinds := 0
	if loss != nil {
		kinds++
		signals = append(signals, loss.Evidence...)
		if v := maxPercent(loss.Evidence); v > 0 {
			lossPct = &v
		}
	}
	if latency != nil {
		kinds++
		signals = append(signals, latency.Evidence...)
		if v := maxLatency(latency.Evidence); v > 0 {
			latencyMs = &v
		}
	}
	if ifaceErrs != nil {
		kinds++
		signals = append(signals, ifaceErrs.Evidence...)
		n := len(ifaceErrs.Evidence)
		errCount = &n
	}

	var conf int
	switch kinds {
	case 1:
		switch {
		case loss != nil:
			conf = 70
		case latency != nil:
			conf = 65
		default:
			conf = 60
		}
	case 2:
		conf = 85
	default:
		conf = 90
	}

	severity := models.SeverityWarning
	if (lossPct != nil && *lossPct > 20) || (latencyMs != nil && *latencyMs > 500) {
		severity = models.SeverityCritical
	}
	summary := "Network quality degradation detected"
	if lossPct != nil {
		summary = fmt.Sprintf("High packet loss detected (%.1f%%)", *lossPct)
	} else if latencyMs != nil {
		summary = fmt.Sprintf("High latency detected (%.0fms)", *latencyMs)
	}
	return []candidate{{
		Subject: "network",
		RootCause: models.RootCause{
			Kind: models.KindNetworkQualityDegradation,
			QualityDegradation: &models.NetworkQualityDegradation{
				PacketLossPercent: lossPct,
				LatencyMs:         latencyMs,
				InterfaceErrors:   errCount,
			},
		},
		Signals:  signals,
		Severity: severity,
		Summary:  summary,
		Details: "Network connection quality is below nominal bounds. Common causes include WiFi interference, " +
			"weak signal, faulty cables, congestion, or an overloaded router.",
		Remediation: []string{
			"ping -c 20 $(ip route | grep default | awk '{print $3}')",
			"ping -c 20 1.1.1.1",
			"ip -s link show",
			"sudo systemctl restart NetworkManager",
		},
		Confidence: conf,
	}}
}

func matchDeviceHotplug(in Input) []candidate {
	added := rawSignals(in, "device_added")
	removed := rawSignals(in, "device_removed")
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	var addedNames, removedNames []string
	var signals []models.Signal
	for _, sig := range added {
		addedNames = append(addedNames, sig.Value.Text)
		signals = append(signals, sig)
	}
	for _, sig := range removed {
		removedNames = append(removedNames, sig.Value.Text)
		signals = append(signals, sig)
	}

	var parts []string
	if len(addedNames) > 0 {
		parts = append(parts, "added "+strings.Join(addedNames, ", "))
	}
	if len(removedNames) > 0 {
		parts = append(parts, "removed "+strings.Join(removedNames, ", "))
	}
	return []candidate{{
		Subject: "devices",
		RootCause: models.RootCause{
			Kind: models.KindDeviceHotplug,
			DeviceHotplug: &models.DeviceHotplug{
				Added:   addedNames,
				Removed: removedNames,
			},
		},
		Signals:  signals,
		Severity: models.SeverityInfo,
		Summary:  "Device change: " + strings.Join(parts, "; "),
		Details: "Hardware was connected or disconnected this cycle. Context for other findings, not a " +
			"failure by itself.",
		Remediation: []string{
			"ip link",
			"journalctl -k -n 30 --no-pager",
		},
		Confidence: 90,
	}}
}

func maxPercent(signals []models.Signal) float64 {
	best := 0.0
	for _, sig := range signals {
		if sig.Value.Kind == models.ValuePercent && sig.Value.Percent > best {
			best = sig.Value.Percent
		}
	}
	return best
}

func maxLatency(signals []models.Signal) float64 {
	best := 0.0
	for _, sig := range signals {
		if sig.Value.Kind == models.ValueLatency && sig.Value.LatencyMs > best {
			best = sig.Value.LatencyMs
		}
	}
	return best
}
