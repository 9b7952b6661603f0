package tracker

import (
	"encoding/json"
	"fmt"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

type rawNomadStats struct {
	AllocatedCPU   float64 `json:"allocatedCPU"`
	UnallocatedCPU float64 `json:"unallocatedCPU"`
	Label          string  `json:"label"`
}

// classify dispatches a side-car's raw stats payload into the tagged Status
// variant for instanceType, per spec.md §4.5. This is the total type switch
// called for in §9's "duck-typed side-car stats" redesign flag.
func classify(instanceType model.InstanceType, raw map[string]any) (model.Status, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("could not re-marshal stats payload: %w", err)
	}

	switch {
	case instanceType.IsAvailabilityFamily():
		var s model.AvailabilityStatus
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("could not parse availability status: %w", err)
		}
		return s, nil

	case instanceType == model.InstanceTypeNomad:
		var n rawNomadStats
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("could not parse nomad status: %w", err)
		}
		return model.NomadStatus{
			AllocatedCPU:          n.AllocatedCPU,
			UnallocatedCPU:        n.UnallocatedCPU,
			EligibleForScheduling: n.Label == "eligible",
		}, nil

	case instanceType.IsStressFamily():
		var s model.StressStatus
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("could not parse stress status: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unrecognized instance type %q", instanceType)
	}
}

// isShuttingDown computes the tri-source shutdown predicate: a live shutdown
// marker, a graceful_shutdown report, or (nomad) scheduling ineligibility.
func isShuttingDown(storedShutdownMarker bool, status model.Status) bool {
	if storedShutdownMarker {
		return true
	}
	switch s := status.(type) {
	case model.StressStatus:
		return s.GracefulShutdown
	case model.NomadStatus:
		return s.GracefulShutdown()
	default:
		return false
	}
}

// metricValue derives the scalar metric written per spec.md §4.5's "track"
// step. ok is false when no metric should be recorded for this status
// (e.g. a stress-family report with no stress_level at all).
func metricValue(status model.Status) (value float64, ok bool) {
	switch s := status.(type) {
	case model.AvailabilityStatus:
		if s.BusyStatus == model.BusyStatusIdle {
			return 1, true
		}
		return 0, true
	case model.StressStatus:
		return s.StressLevel, true
	case model.NomadStatus:
		return s.StressLevel(), true
	default:
		return 0, false
	}
}
