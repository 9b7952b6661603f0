package model

import "fmt"

// InstanceType is the closed set of worker roles a group can manage.
type InstanceType string

const (
	InstanceTypeRecorder      InstanceType = "recorder"
	InstanceTypeBridge        InstanceType = "bridge"
	InstanceTypeGateway       InstanceType = "gateway"
	InstanceTypeGenericStress InstanceType = "generic-stress"
	InstanceTypeAvailability  InstanceType = "availability"
	InstanceTypeNomad         InstanceType = "nomad"
)

// IsStressFamily reports whether the group's metric family is the
// stress-average family (as opposed to the availability/idle-count family).
func (t InstanceType) IsStressFamily() bool {
	switch t {
	case InstanceTypeBridge, InstanceTypeGateway, InstanceTypeGenericStress:
		return true
	default:
		return false
	}
}

// IsAvailabilityFamily reports whether the group's metric family counts
// idle instances (recorders).
func (t InstanceType) IsAvailabilityFamily() bool {
	return t == InstanceTypeRecorder || t == InstanceTypeAvailability
}

// ScalingOptions are the per-group controller parameters. DesiredCount is
// always clamped into [MinDesired, MaxDesired] by SetDesired.
type ScalingOptions struct {
	MinDesired         int `json:"minDesired"`
	MaxDesired         int `json:"maxDesired"`
	DesiredCount       int `json:"desiredCount"`
	ScaleUpQuantity    int `json:"scaleUpQuantity"`
	ScaleDownQuantity  int `json:"scaleDownQuantity"`
	ScaleUpThreshold   float64 `json:"scaleUpThreshold"`
	ScaleDownThreshold float64 `json:"scaleDownThreshold"`
	// ScalePeriod is the bucket width, in seconds.
	ScalePeriod         int `json:"scalePeriod"`
	ScaleUpPeriodsCount int `json:"scaleUpPeriodsCount"`
	ScaleDownPeriodsCount int `json:"scaleDownPeriodsCount"`
}

// Clamp clamps DesiredCount into [MinDesired, MaxDesired]. Called by every
// setter that mutates DesiredCount so the P1 bounds invariant always holds.
func (o *ScalingOptions) Clamp() {
	if o.DesiredCount < o.MinDesired {
		o.DesiredCount = o.MinDesired
	}
	if o.DesiredCount > o.MaxDesired {
		o.DesiredCount = o.MaxDesired
	}
}

// Validate returns an error if Min/Max/Desired are not well ordered.
func (o ScalingOptions) Validate() error {
	if o.MinDesired > o.MaxDesired {
		return fmt.Errorf("minDesired (%d) must be <= maxDesired (%d)", o.MinDesired, o.MaxDesired)
	}
	if o.DesiredCount < o.MinDesired || o.DesiredCount > o.MaxDesired {
		return fmt.Errorf("desiredCount (%d) must be within [%d,%d]", o.DesiredCount, o.MinDesired, o.MaxDesired)
	}
	return nil
}

// MaxPeriodsCount returns the larger of the two windows, used to size a
// single metrics-store query that serves both predicates.
func (o ScalingOptions) MaxPeriodsCount() int {
	if o.ScaleUpPeriodsCount > o.ScaleDownPeriodsCount {
		return o.ScaleUpPeriodsCount
	}
	return o.ScaleDownPeriodsCount
}

// InstanceGroup is the policy unit: a named cohort sharing type, region,
// cloud, provisioning template and a scaling policy.
type InstanceGroup struct {
	Name                    string            `json:"name"`
	Type                    InstanceType      `json:"type"`
	Region                  string            `json:"region"`
	Environment             string            `json:"environment"`
	Cloud                   string            `json:"cloud"`
	CompartmentID           string            `json:"compartmentId"`
	InstanceConfigurationID string            `json:"instanceConfigurationId"`
	EnableAutoScale         bool              `json:"enableAutoScale"`
	EnableLaunch            bool              `json:"enableLaunch"`
	EnableScheduler         bool              `json:"enableScheduler"`
	EnableUntrackedThrottle bool              `json:"enableUntrackedThrottle"`
	GracePeriodTTLSec       int               `json:"gracePeriodTTLSec"`
	ProtectedTTLSec         int               `json:"protectedTTLSec"`
	ScalingOptions          ScalingOptions    `json:"scalingOptions"`
	Tags                    map[string]string `json:"tags"`
}

// Clone returns a deep-enough copy safe to mutate without aliasing the
// original's Tags map.
func (g InstanceGroup) Clone() InstanceGroup {
	out := g
	if g.Tags != nil {
		out.Tags = make(map[string]string, len(g.Tags))
		for k, v := range g.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
