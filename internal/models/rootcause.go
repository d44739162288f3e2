package models

// RootCauseKind enumerates the closed set of root-cause categories.
type RootCauseKind string

const (
	KindNetworkRoutingConflict    RootCauseKind = "network_routing_conflict"
	KindNetworkPriorityMismatch   RootCauseKind = "network_priority_mismatch"
	KindNetworkQualityDegradation RootCauseKind = "network_quality_degradation"
	KindDiskPressure              RootCauseKind = "disk_pressure"
	KindServiceFlapping           RootCauseKind = "service_flapping"
	KindServiceConfigError        RootCauseKind = "service_config_error"
	KindMemoryPressure            RootCauseKind = "memory_pressure"
	KindCPUOverload               RootCauseKind = "cpu_overload"
	KindKernelRegression          RootCauseKind = "kernel_regression"
	KindDeviceHotplug             RootCauseKind = "device_hotplug"
)

// RootCause is a tagged union: Kind names the variant and exactly one of
// the payload pointers is populated.
type RootCause struct {
	Kind RootCauseKind `json:"kind"`

	RoutingConflict    *NetworkRoutingConflict    `json:"network_routing_conflict,omitempty"`
	PriorityMismatch   *NetworkPriorityMismatch   `json:"network_priority_mismatch,omitempty"`
	QualityDegradation *NetworkQualityDegradation `json:"network_quality_degradation,omitempty"`
	DiskPressure       *DiskPressure              `json:"disk_pressure,omitempty"`
	ServiceFlapping    *ServiceFlapping           `json:"service_flapping,omitempty"`
	ServiceConfigError *ServiceConfigError        `json:"service_config_error,omitempty"`
	MemoryPressure     *MemoryPressure            `json:"memory_pressure,omitempty"`
	CPUOverload        *CPUOverload               `json:"cpu_overload,omitempty"`
	KernelRegression   *KernelRegression          `json:"kernel_regression,omitempty"`
	DeviceHotplug      *DeviceHotplug             `json:"device_hotplug,omitempty"`
}

// NetworkRoutingConflict indicates multiple default routes fighting over
// outbound traffic.
type NetworkRoutingConflict struct {
	DuplicateRoutes []string `json:"duplicate_routes"`
}

// NetworkPriorityMismatch indicates a slower interface holding the default
// route while a faster one is available.
type NetworkPriorityMismatch struct {
	SlowInterface string `json:"slow_interface"`
	FastInterface string `json:"fast_interface"`
	SlowSpeedMbps int    `json:"slow_speed_mbps"`
	FastSpeedMbps int    `json:"fast_speed_mbps"`
}

// NetworkQualityDegradation indicates packet loss, latency, or interface
// errors beyond nominal bounds. Nil fields were not observed this cycle.
type NetworkQualityDegradation struct {
	PacketLossPercent *float64 `json:"packet_loss_percent,omitempty"`
	LatencyMs         *float64 `json:"latency_ms,omitempty"`
	InterfaceErrors   *int     `json:"interface_errors,omitempty"`
}

// DiskPressure indicates a filesystem approaching or at capacity.
type DiskPressure struct {
	Mountpoint      string `json:"mountpoint"`
	UsagePercent    int    `json:"usage_percent"`
	InodeExhaustion bool   `json:"inode_exhaustion"`
}

// ServiceFlapping indicates a unit caught in a restart loop.
type ServiceFlapping struct {
	ServiceName   string `json:"service_name"`
	RestartCount  int    `json:"restart_count"`
	WindowMinutes int    `json:"window_minutes"`
}

// ServiceConfigError indicates a unit that failed outright.
type ServiceConfigError struct {
	ServiceName  string `json:"service_name"`
	ErrorMessage string `json:"error_message"`
	ExitCode     int    `json:"exit_code"`
}

// MemoryPressure indicates RAM (and optionally swap) exhaustion. A nil
// SwapPercent means no swap is configured.
type MemoryPressure struct {
	RAMPercent  float64  `json:"ram_percent"`
	SwapPercent *float64 `json:"swap_percent,omitempty"`
}

// CPUOverload indicates sustained load beyond core capacity.
type CPUOverload struct {
	LoadPerCore    float64 `json:"load_per_core"`
	RunawayProcess string  `json:"runaway_process,omitempty"`
}

// KernelRegression indicates boot-time errors or driver failures after a
// kernel change.
type KernelRegression struct {
	BootErrors     int      `json:"boot_errors"`
	DriverFailures []string `json:"driver_failures,omitempty"`
}

// DeviceHotplug records devices added or removed this cycle. Context, not
// failure: it never penalises the health score.
type DeviceHotplug struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}
