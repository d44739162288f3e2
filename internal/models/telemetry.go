package models

import "time"

// TelemetrySnapshot is the read-only record of current system metrics
// supplied once per cycle by the collector. Nil sections mean the source
// was unavailable; rules depending on them contribute nothing.
type TelemetrySnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	CPU      *CPUTelemetry        `json:"cpu,omitempty"`
	Memory   *MemoryTelemetry     `json:"memory,omitempty"`
	Disks    []DiskTelemetry      `json:"disks,omitempty"`
	Services []ServiceTelemetry   `json:"services,omitempty"`
	Journal  *JournalTelemetry    `json:"journal,omitempty"`
	Network  []InterfaceTelemetry `json:"network,omitempty"`
}

// CPUTelemetry carries load and the current top consumer.
type CPUTelemetry struct {
	LoadPerCore          float64 `json:"load_per_core"`
	UsagePercent         float64 `json:"usage_percent"`
	CoreCount            int     `json:"core_count"`
	TopProcess           string  `json:"top_process,omitempty"`
	TopProcessCPUPercent float64 `json:"top_process_cpu_percent,omitempty"`
}

// MemoryTelemetry carries RAM and swap utilisation.
type MemoryTelemetry struct {
	UsedPercent     float64 `json:"used_percent"`
	SwapUsedPercent float64 `json:"swap_used_percent"`
	SwapConfigured  bool    `json:"swap_configured"`
}

// DiskTelemetry carries per-mount capacity figures.
type DiskTelemetry struct {
	Mountpoint        string  `json:"mountpoint"`
	UsedPercent       float64 `json:"used_percent"`
	InodesUsedPercent float64 `json:"inodes_used_percent"`
}

// ServiceTelemetry carries one unit's state as reported by the init system.
type ServiceTelemetry struct {
	Name             string `json:"name"`
	State            string `json:"state"` // active, failed, degraded
	RestartsLastHour int    `json:"restarts_last_hour"`
	LastError        string `json:"last_error,omitempty"`
	ExitCode         int    `json:"exit_code,omitempty"`
}

// JournalTelemetry carries recent log error counts.
type JournalTelemetry struct {
	ErrorsLastHour int      `json:"errors_last_hour"`
	BootErrors     int      `json:"boot_errors"`
	DriverFailures []string `json:"driver_failures,omitempty"`
}

// InterfaceTelemetry carries per-interface link state and counters.
type InterfaceTelemetry struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"` // ethernet, wifi, other
	SpeedMbps         int      `json:"speed_mbps"`
	HasDefaultRoute   bool     `json:"has_default_route"`
	RxPackets         uint64   `json:"rx_packets"`
	TxPackets         uint64   `json:"tx_packets"`
	RxErrors          uint64   `json:"rx_errors"`
	TxErrors          uint64   `json:"tx_errors"`
	PacketLossPercent *float64 `json:"packet_loss_percent,omitempty"`
	LatencyMs         *float64 `json:"latency_ms,omitempty"`
}

// ErrorRatePercent computes the combined rx/tx error rate for an interface.
// Returns 0 when no packets have been seen.
func (i InterfaceTelemetry) ErrorRatePercent() float64 {
	total := i.RxPackets + i.TxPackets
	if total == 0 {
		return 0
	}
	return float64(i.RxErrors+i.TxErrors) / float64(total) * 100
}
