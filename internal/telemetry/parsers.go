package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vigil-sys/vigil/internal/models"
)

// ParseTopProcess reads the first row of `ps -eo comm,%cpu --sort=-%cpu`.
func ParseTopProcess(out string) (name string, cpuPercent float64, ok bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pct, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		return strings.Join(fields[:len(fields)-1], " "), pct, true
	}
	return "", 0, false
}

// ParseFailedUnits reads `systemctl list-units --state=failed --plain
// --no-legend` output. Columns: UNIT LOAD ACTIVE SUB DESCRIPTION.
func ParseFailedUnits(out string) []models.ServiceTelemetry {
	var services []models.ServiceTelemetry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := strings.TrimPrefix(fields[0], "●")
		name = strings.TrimSpace(name)
		if !strings.HasSuffix(name, ".service") {
			continue
		}
		state := "failed"
		if fields[2] == "active" || fields[3] == "degraded" {
			state = "degraded"
		}
		svc := models.ServiceTelemetry{
			Name:  strings.TrimSuffix(name, ".service"),
			State: state,
		}
		if len(fields) > 4 {
			svc.LastError = strings.Join(fields[4:], " ")
		}
		services = append(services, svc)
	}
	return services
}

// UnitProperties holds the subset of `systemctl show` output the collector
// reads per failed unit.
type UnitProperties struct {
	Restarts int
	ExitCode int
	Result   string
}

// ParseUnitProperties reads KEY=VALUE lines from `systemctl show`.
func ParseUnitProperties(out string) UnitProperties {
	var props UnitProperties
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "NRestarts":
			if n, err := strconv.Atoi(value); err == nil {
				props.Restarts = n
			}
		case "ExecMainStatus":
			if n, err := strconv.Atoi(value); err == nil {
				props.ExitCode = n
			}
		case "Result":
			props.Result = value
		}
	}
	return props
}

// driverFailureMarkers are substrings of kernel log lines that point at a
// driver or firmware problem rather than a generic error.
var driverFailureMarkers = []string{
	"firmware",
	"failed to load",
	"probe failed",
	"module verification failed",
	"unknown symbol",
}

// ExtractDriverFailures pulls driver and firmware failure lines out of
// kernel log output, deduplicated and capped at 10.
func ExtractDriverFailures(out string) []string {
	var failures []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, marker := range driverFailureMarkers {
			if strings.Contains(lower, marker) {
				if _, dup := seen[line]; !dup {
					seen[line] = struct{}{}
					failures = append(failures, line)
				}
				break
			}
		}
		if len(failures) >= 10 {
			break
		}
	}
	return failures
}

// ParseDefaultRoutes reads /proc/net/route and reports which interfaces
// hold a default route (destination 00000000).
func ParseDefaultRoutes(data string) map[string]bool {
	routes := make(map[string]bool)
	for idx, line := range strings.Split(data, "\n") {
		if idx == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[1] == "00000000" {
			routes[fields[0]] = true
		}
	}
	return routes
}

// ParseDefaultGateway returns the dotted-quad gateway of the first default
// route in /proc/net/route, or empty when none exists. The kernel stores
// the gateway as little-endian hex.
func ParseDefaultGateway(data string) string {
	for idx, line := range strings.Split(data, "\n") {
		if idx == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		raw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil || raw == 0 {
			continue
		}
		return fmt.Sprintf("%d.%d.%d.%d", byte(raw), byte(raw>>8), byte(raw>>16), byte(raw>>24))
	}
	return ""
}

// ParsePingStats reads loss and average latency from ping output lines:
//
//	5 packets transmitted, 4 received, 20% packet loss, time 4005ms
//	rtt min/avg/max/mdev = 0.4/12.3/40.1/2.2 ms
func ParsePingStats(out string) (lossPercent, avgLatencyMs float64, ok bool) {
	lossFound := false
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "packet loss") {
			for _, field := range strings.Fields(line) {
				if strings.HasSuffix(field, "%") {
					if v, err := strconv.ParseFloat(strings.TrimSuffix(field, "%"), 64); err == nil {
						lossPercent = v
						lossFound = true
					}
					break
				}
			}
		}
		if strings.HasPrefix(strings.TrimSpace(line), "rtt") {
			_, values, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			parts := strings.Split(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(values), "ms")), "/")
			if len(parts) >= 2 {
				if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
					avgLatencyMs = v
				}
			}
		}
	}
	return lossPercent, avgLatencyMs, lossFound
}

// InterfaceType classifies an interface by its kernel name.
func InterfaceType(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"):
		return "wifi"
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return "ethernet"
	case strings.HasPrefix(name, "ww"):
		return "wwan"
	default:
		return "other"
	}
}
