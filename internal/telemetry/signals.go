package telemetry

import (
	"sort"
	"time"

	"github.com/vigil-sys/vigil/internal/models"
)

// Detector derives raw signals that are not threshold judgements: device
// hotplug events and duplicate default routes. It keeps the previous
// cycle's interface set to diff against.
type Detector struct {
	prevInterfaces map[string]struct{}
	seeded         bool
}

// NewDetector returns a Detector with no history. The first snapshot seeds
// the interface set without emitting hotplug signals.
func NewDetector() *Detector {
	return &Detector{prevInterfaces: make(map[string]struct{})}
}

// Detect produces this cycle's raw signals from the snapshot.
func (d *Detector) Detect(snap *models.TelemetrySnapshot) []models.Signal {
	if snap == nil {
		return nil
	}
	var signals []models.Signal
	signals = append(signals, d.hotplugSignals(snap)...)
	signals = append(signals, duplicateRouteSignal(snap)...)
	return signals
}

func (d *Detector) hotplugSignals(snap *models.TelemetrySnapshot) []models.Signal {
	current := make(map[string]struct{}, len(snap.Network))
	for _, iface := range snap.Network {
		current[iface.Name] = struct{}{}
	}

	prev := d.prevInterfaces
	seeded := d.seeded
	d.prevInterfaces = current
	d.seeded = true
	if !seeded {
		return nil
	}

	var added, removed []string
	for name := range current {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range prev {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	var signals []models.Signal
	for _, name := range added {
		signals = append(signals, deviceSignal("device_added", name, snap.Timestamp))
	}
	for _, name := range removed {
		signals = append(signals, deviceSignal("device_removed", name, snap.Timestamp))
	}
	return signals
}

func deviceSignal(ref, name string, ts time.Time) models.Signal {
	verb := "connected"
	if ref == "device_removed" {
		verb = "disconnected"
	}
	return models.Signal{
		Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: ref},
		Observation: "Interface " + name + " " + verb,
		Value:       models.TextValue(name),
		Timestamp:   ts,
	}
}

func duplicateRouteSignal(snap *models.TelemetrySnapshot) []models.Signal {
	var holders []string
	for _, iface := range snap.Network {
		if iface.HasDefaultRoute {
			holders = append(holders, iface.Name)
		}
	}
	if len(holders) < 2 {
		return nil
	}
	sort.Strings(holders)
	return []models.Signal{{
		Source:      models.SignalSource{Kind: models.SourceNetwork, Ref: "duplicate_default_routes"},
		Observation: "Multiple interfaces hold a default route",
		Value:       models.CountValue(len(holders)),
		Timestamp:   snap.Timestamp,
	}}
}
