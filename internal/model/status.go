package model

// BusyStatus is the availability-family reporter state.
type BusyStatus string

const (
	BusyStatusBusy    BusyStatus = "busy"
	BusyStatusIdle    BusyStatus = "idle"
	BusyStatusExpired BusyStatus = "expired"
)

// Health is the availability-family health state.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// Status is a closed tagged variant over the shapes a side-car can report.
// Downstream dispatch (metric derivation, victim selection) is a total type
// switch over this interface -- see tracker.classify and launcher victim
// selection.
type Status interface {
	isStatus()
}

// ProvisioningStatus marks an instance the launcher created but which has
// not yet reported in.
type ProvisioningStatus struct{}

func (ProvisioningStatus) isStatus() {}

// AvailabilityStatus is reported by recorder-family instances.
type AvailabilityStatus struct {
	BusyStatus BusyStatus `json:"busyStatus"`
	Health     Health     `json:"health"`
}

func (AvailabilityStatus) isStatus() {}

// StressStatus is reported by bridge/gateway/generic-stress instances.
type StressStatus struct {
	StressLevel      float64  `json:"stress_level"`
	Participants      *int    `json:"participants,omitempty"`
	AllocatedCPU      *float64 `json:"allocatedCPU,omitempty"`
	Connections       *int    `json:"connections,omitempty"`
	GracefulShutdown  bool    `json:"graceful_shutdown,omitempty"`
}

func (StressStatus) isStatus() {}

// NomadStatus is derived from a Nomad scheduling-eligibility report; it is
// folded into a StressStatus-shaped metric by the tracker ("stress_level =
// allocatedCPU / (allocatedCPU+unallocatedCPU)").
type NomadStatus struct {
	AllocatedCPU         float64 `json:"allocatedCPU"`
	UnallocatedCPU       float64 `json:"unallocatedCPU"`
	EligibleForScheduling bool   `json:"eligibleForScheduling"`
}

func (NomadStatus) isStatus() {}

// StressLevel derives the stress_level metric for a Nomad report.
func (n NomadStatus) StressLevel() float64 {
	total := n.AllocatedCPU + n.UnallocatedCPU
	if total <= 0 {
		return 0
	}
	return n.AllocatedCPU / total
}

// GracefulShutdown reports whether the nomad instance should be treated as
// shutting down.
func (n NomadStatus) GracefulShutdown() bool {
	return !n.EligibleForScheduling
}

// ScaleDownMetric returns the first defined value among participants,
// allocatedCPU, connections, stress_level -- used to rank stress-family
// scale-down victims (§4.9).
func (s StressStatus) ScaleDownMetric() float64 {
	if s.Participants != nil {
		return float64(*s.Participants)
	}
	if s.AllocatedCPU != nil {
		return *s.AllocatedCPU
	}
	if s.Connections != nil {
		return float64(*s.Connections)
	}
	return s.StressLevel
}
