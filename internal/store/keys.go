package store

import "fmt"

// Logical key builders, matching the table in spec.md §6.

func groupKey(name string) string { return fmt.Sprintf("group:%s", name) }

func instancesStatusKey(group string) string { return fmt.Sprintf("instances:status:%s", group) }

func metricKey(group, instanceID string) string {
	return fmt.Sprintf("metric:%s:%s", group, instanceID)
}

func shutdownKey(instanceID string) string { return fmt.Sprintf("instance:shutdown:%s", instanceID) }

func shutdownConfirmationKey(instanceID string) string {
	return fmt.Sprintf("instance:shutdownConfirmation:%s", instanceID)
}

func scaleDownProtectedKey(instanceID string) string {
	return fmt.Sprintf("instance:scaleDownProtected:%s", instanceID)
}

func reconfigureKey(instanceID string) string {
	return fmt.Sprintf("instance:reconfigure:%s", instanceID)
}

func auditKey(group, instanceID string, kind string) string {
	return fmt.Sprintf("audit:%s:%s:%s", group, instanceID, kind)
}

// AutoScaleGracePeriodKey is exported: the autoscaler and the group manager
// both need to name this key.
func AutoScaleGracePeriodKey(group string) string { return fmt.Sprintf("autoScaleGracePeriod:%s", group) }

// SanityGracePeriodKey names the sanity-loop per-group grace key.
func SanityGracePeriodKey(group string) string { return fmt.Sprintf("sanityGracePeriod:%s", group) }

// GroupJobsCreationGracePeriodKey is the global job-production gate.
const GroupJobsCreationGracePeriodKey = "groupJobsCreationGracePeriod"

// SanityJobsCreationGracePeriodKey is the global sanity-job-production gate.
const SanityJobsCreationGracePeriodKey = "sanityJobsCreationGracePeriod"

// UntrackedCountKey names the per-group untracked-instance count cache the
// sanity loop maintains for the launcher's throttle.
func UntrackedCountKey(group string) string {
	return fmt.Sprintf("service-metrics:%s:untracked-count", group)
}

// GroupProtectedKey names the group-wide scale-down protection marker set
// by the launch-protected admin action.
func GroupProtectedKey(group string) string { return fmt.Sprintf("isScaleDownProtected:%s", group) }
