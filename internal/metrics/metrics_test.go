package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-sys/vigil/internal/models"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register failed: %v", err)
	}
}

func TestObserveCycleHandlesNegativeDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Must not panic on clock weirdness.
	ObserveCycle(-time.Second)
	ObserveCycle(100 * time.Millisecond)
	CycleSkipped()
}

func TestPublishAssessmentSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	PublishAssessment(models.ProactiveAssessment{
		HealthScore:   75,
		CriticalCount: 1,
		WarningCount:  2,
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "vigil_health_score" {
			found = true
			if got := fam.GetMetric()[0].GetGauge().GetValue(); got != 75 {
				t.Fatalf("expected health score 75, got %v", got)
			}
		}
	}
	if !found {
		t.Fatal("vigil_health_score not gathered")
	}
}
