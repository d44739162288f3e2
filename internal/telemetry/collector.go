// Package telemetry gathers the per-cycle system snapshot: resource
// utilisation via gopsutil, service and journal state via systemd tooling,
// and link state from the kernel's network tables.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"

	"github.com/vigil-sys/vigil/internal/models"
)

// System call wrappers for testing
var (
	cpuCounts      = gocpu.CountsWithContext
	cpuPercent     = gocpu.PercentWithContext
	loadAvg        = goload.AvgWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	diskPartitions = godisk.PartitionsWithContext
	diskUsage      = godisk.UsageWithContext
	netInterfaces  = gonet.InterfacesWithContext
	netIOCounters  = gonet.IOCountersWithContext
	readFile       = os.ReadFile
)

// Collector produces one telemetry snapshot per cycle.
type Collector interface {
	Collect(ctx context.Context) *models.TelemetrySnapshot
}

// SystemCollector reads live telemetry from the host. Every section is
// best-effort: a source that fails leaves its section nil and the snapshot
// still ships.
type SystemCollector struct {
	logger *slog.Logger

	// runCommand is swappable so tests can fake systemd and ping output.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
}

// NewSystemCollector constructs a collector over the live host.
func NewSystemCollector(logger *slog.Logger) *SystemCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemCollector{
		logger:     logger,
		runCommand: runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// Collect gathers a point-in-time snapshot. Never returns nil.
func (c *SystemCollector) Collect(ctx context.Context) *models.TelemetrySnapshot {
	collectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	snap := &models.TelemetrySnapshot{Timestamp: time.Now().UTC()}
	snap.CPU = c.collectCPU(collectCtx)
	snap.Memory = c.collectMemory(collectCtx)
	snap.Disks = c.collectDisks(collectCtx)
	snap.Services = c.collectServices(collectCtx)
	snap.Journal = c.collectJournal(collectCtx)
	snap.Network = c.collectNetwork(collectCtx)
	return snap
}

func (c *SystemCollector) collectCPU(ctx context.Context) *models.CPUTelemetry {
	cores, err := cpuCounts(ctx, true)
	if err != nil || cores <= 0 {
		c.logger.Debug("cpu count unavailable", slog.Any("error", err))
		return nil
	}
	avg, err := loadAvg(ctx)
	if err != nil || avg == nil {
		c.logger.Debug("load average unavailable", slog.Any("error", err))
		return nil
	}

	cpu := &models.CPUTelemetry{
		CoreCount:   cores,
		LoadPerCore: avg.Load1 / float64(cores),
	}
	if pct, err := cpuPercent(ctx, time.Second, false); err == nil && len(pct) > 0 {
		cpu.UsagePercent = clampPercent(pct[0])
	}
	if out, err := c.runCommand(ctx, "ps", "-eo", "comm,%cpu", "--sort=-%cpu", "--no-headers"); err == nil {
		name, pct, ok := ParseTopProcess(out)
		if ok {
			cpu.TopProcess = name
			cpu.TopProcessCPUPercent = pct
		}
	}
	return cpu
}

func (c *SystemCollector) collectMemory(ctx context.Context) *models.MemoryTelemetry {
	stats, err := virtualMemory(ctx)
	if err != nil {
		c.logger.Debug("memory stats unavailable", slog.Any("error", err))
		return nil
	}
	mem := &models.MemoryTelemetry{
		UsedPercent:    stats.UsedPercent,
		SwapConfigured: stats.SwapTotal > 0,
	}
	if stats.SwapTotal > 0 {
		used := stats.SwapTotal - stats.SwapFree
		mem.SwapUsedPercent = float64(used) / float64(stats.SwapTotal) * 100
	}
	return mem
}

func (c *SystemCollector) collectDisks(ctx context.Context) []models.DiskTelemetry {
	partitions, err := diskPartitions(ctx, false)
	if err != nil {
		c.logger.Debug("disk partitions unavailable", slog.Any("error", err))
		return nil
	}

	var disks []models.DiskTelemetry
	seen := make(map[string]struct{}, len(partitions))
	for _, part := range partitions {
		if part.Mountpoint == "" {
			continue
		}
		if _, ok := seen[part.Mountpoint]; ok {
			continue
		}
		seen[part.Mountpoint] = struct{}{}

		usage, err := diskUsage(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		disks = append(disks, models.DiskTelemetry{
			Mountpoint:        part.Mountpoint,
			UsedPercent:       usage.UsedPercent,
			InodesUsedPercent: usage.InodesUsedPercent,
		})
	}
	return disks
}

func (c *SystemCollector) collectServices(ctx context.Context) []models.ServiceTelemetry {
	out, err := c.runCommand(ctx, "systemctl", "list-units", "--type=service",
		"--state=failed", "--plain", "--no-legend", "--no-pager")
	if err != nil {
		c.logger.Debug("systemctl unavailable", slog.Any("error", err))
		return nil
	}

	services := ParseFailedUnits(out)
	for idx := range services {
		show, err := c.runCommand(ctx, "systemctl", "show", services[idx].Name,
			"-p", "NRestarts", "-p", "ExecMainStatus", "-p", "Result")
		if err != nil {
			continue
		}
		props := ParseUnitProperties(show)
		services[idx].RestartsLastHour = props.Restarts
		services[idx].ExitCode = props.ExitCode
		if services[idx].LastError == "" && props.Result != "" && props.Result != "success" {
			services[idx].LastError = "unit result: " + props.Result
		}
	}
	return services
}

func (c *SystemCollector) collectJournal(ctx context.Context) *models.JournalTelemetry {
	recent, err := c.runCommand(ctx, "journalctl", "-p", "err",
		"--since", "-1h", "-o", "cat", "--no-pager", "-q")
	if err != nil {
		c.logger.Debug("journalctl unavailable", slog.Any("error", err))
		return nil
	}
	journal := &models.JournalTelemetry{ErrorsLastHour: countLines(recent)}

	if boot, err := c.runCommand(ctx, "journalctl", "-k", "-b", "-p", "err",
		"-o", "cat", "--no-pager", "-q"); err == nil {
		journal.BootErrors = countLines(boot)
		journal.DriverFailures = ExtractDriverFailures(boot)
	}
	return journal
}

func (c *SystemCollector) collectNetwork(ctx context.Context) []models.InterfaceTelemetry {
	ifaces, err := netInterfaces(ctx)
	if err != nil {
		c.logger.Debug("network interfaces unavailable", slog.Any("error", err))
		return nil
	}

	counters := make(map[string]gonet.IOCountersStat)
	if stats, err := netIOCounters(ctx, true); err == nil {
		for _, s := range stats {
			counters[s.Name] = s
		}
	}
	defaultRoutes := c.defaultRoutes()

	var out []models.InterfaceTelemetry
	for _, iface := range ifaces {
		if iface.Name == "lo" || !hasFlag(iface.Flags, "up") {
			continue
		}
		entry := models.InterfaceTelemetry{
			Name:            iface.Name,
			Type:            InterfaceType(iface.Name),
			SpeedMbps:       c.linkSpeed(iface.Name),
			HasDefaultRoute: defaultRoutes[iface.Name],
		}
		if s, ok := counters[iface.Name]; ok {
			entry.RxPackets = s.PacketsRecv
			entry.TxPackets = s.PacketsSent
			entry.RxErrors = s.Errin
			entry.TxErrors = s.Errout
		}
		out = append(out, entry)
	}

	c.probeGateway(ctx, out)
	return out
}

// probeGateway pings the default gateway through the interface holding the
// default route and fills in loss and latency for it.
func (c *SystemCollector) probeGateway(ctx context.Context, ifaces []models.InterfaceTelemetry) {
	gateway := c.defaultGateway()
	if gateway == "" {
		return
	}
	out, err := c.runCommand(ctx, "ping", "-c", "5", "-W", "1", gateway)
	if err != nil && out == "" {
		return
	}
	loss, latency, ok := ParsePingStats(out)
	if !ok {
		return
	}
	for idx := range ifaces {
		if ifaces[idx].HasDefaultRoute {
			ifaces[idx].PacketLossPercent = &loss
			ifaces[idx].LatencyMs = &latency
		}
	}
}

func (c *SystemCollector) defaultRoutes() map[string]bool {
	data, err := readFile("/proc/net/route")
	if err != nil {
		return nil
	}
	return ParseDefaultRoutes(string(data))
}

func (c *SystemCollector) defaultGateway() string {
	data, err := readFile("/proc/net/route")
	if err != nil {
		return ""
	}
	return ParseDefaultGateway(string(data))
}

func (c *SystemCollector) linkSpeed(name string) int {
	data, err := readFile("/sys/class/net/" + name + "/speed")
	if err != nil {
		return 0
	}
	speed, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || speed < 0 {
		return 0
	}
	return speed
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func countLines(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
