// Package store defines the InstanceStore contract (spec.md §4.1): the only
// abstraction allowed to perform I/O for durable control-plane state. Two
// implementations are provided -- a durable profile backed by Redis
// (store/redis.go) and an in-process hierarchical profile for single-replica
// deployments (store/local.go).
package store

import (
	"context"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// ProtectionMode labels why an instance was marked scale-down protected
// (e.g. "admin", "launch-protected"); stored verbatim and returned to
// callers that need to tell protection reasons apart.
type ProtectionMode string

// InstanceStore is the persistence contract consumed by every state-holding
// component. Implementations must provide cursor-scannable bulk listing so
// request size stays bounded.
type InstanceStore interface {
	// Groups.
	GetInstanceGroup(ctx context.Context, name string) (*model.InstanceGroup, error)
	UpsertInstanceGroup(ctx context.Context, group model.InstanceGroup) error
	DeleteInstanceGroup(ctx context.Context, name string) error
	GetAllInstanceGroupNames(ctx context.Context) ([]string, error)
	GetAllInstanceGroups(ctx context.Context) ([]model.InstanceGroup, error)
	ExistsAtLeastOneGroup(ctx context.Context) (bool, error)

	// Instance state.
	FetchInstanceStates(ctx context.Context, group string) ([]model.InstanceState, error)
	SaveInstanceStatus(ctx context.Context, group string, state model.InstanceState) error

	// FilterOutAndTrimExpiredStates deletes storage rows whose effective
	// TTL (idle/provisioning/shutdown-status, depending on the row) has
	// passed and returns only the still-valid states.
	FilterOutAndTrimExpiredStates(ctx context.Context, group string, states []model.InstanceState, ttl TTLConfig) ([]model.InstanceState, error)

	// Shutdown / reconfigure / protection markers.
	SetShutdownStatus(ctx context.Context, instanceIDs []string, status bool, ttl time.Duration) error
	GetShutdownStatus(ctx context.Context, instanceID string) (bool, error)
	GetShutdownStatuses(ctx context.Context, group string, instanceIDs []string) (map[string]bool, error)
	SetShutdownConfirmation(ctx context.Context, instanceID string, at time.Time, ttl time.Duration) error
	GetShutdownConfirmation(ctx context.Context, instanceID string) (*time.Time, error)
	GetShutdownConfirmations(ctx context.Context, group string, instanceIDs []string) (map[string]time.Time, error)

	SetScaleDownProtected(ctx context.Context, group, instanceID string, ttl time.Duration, mode ProtectionMode) error
	AreScaleDownProtected(ctx context.Context, group string, instanceIDs []string) ([]bool, error)

	SetReconfigureDate(ctx context.Context, instanceIDs []string, date time.Time, ttl time.Duration) error
	UnsetReconfigureDate(ctx context.Context, instanceID, group string) error
	GetReconfigureDate(ctx context.Context, instanceID string) (*time.Time, error)
	GetReconfigureDates(ctx context.Context, group string, instanceIDs []string) (map[string]time.Time, error)

	// Metrics.
	SaveMetric(ctx context.Context, group string, metric model.InstanceMetric, ttl time.Duration) error
	FetchMetrics(ctx context.Context, group string, since time.Time) ([]model.InstanceMetric, error)

	// Audit.
	AppendAudit(ctx context.Context, event model.AuditEvent, ttl time.Duration) error
	FetchAudit(ctx context.Context, group string) ([]model.AuditEvent, error)

	// Grace-timer primitive.
	SetValue(ctx context.Context, key string, value string, ttl time.Duration) error
	CheckValue(ctx context.Context, key string) (bool, error)
	GetValue(ctx context.Context, key string) (string, bool, error)

	Close() error
}

// TTLConfig bundles the retention windows a store needs to compute an
// instance row's effective TTL (spec.md §4.1).
type TTLConfig struct {
	IdleTTL           time.Duration
	ProvisioningTTL   time.Duration
	ShutdownStatusTTL time.Duration
}

// EffectiveTTL picks idle/provisioning/shutdown TTL for one state row.
func (c TTLConfig) EffectiveTTL(s model.InstanceState) time.Duration {
	switch {
	case s.Provisioning:
		return c.ProvisioningTTL
	case s.IsShuttingDown:
		return c.ShutdownStatusTTL
	default:
		return c.IdleTTL
	}
}
