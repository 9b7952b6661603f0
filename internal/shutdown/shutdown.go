// Package shutdown implements the ShutdownManager of spec.md §4.4: marks
// intent on instances with a TTL, lets side-cars poll and confirm, and
// records confirmations with their own TTL. It depends only on store and
// audit (layered per §9's redesign flag -- no back-reference to tracker).
package shutdown

import (
	"context"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

// Manager marks and confirms shutdown intent.
type Manager struct {
	store store.InstanceStore
	audit *audit.Log
	ttl   time.Duration
}

// New builds a shutdown manager with the shutdownTTL from spec.md §6.
func New(st store.InstanceStore, auditLog *audit.Log, ttl time.Duration) *Manager {
	return &Manager{store: st, audit: auditLog, ttl: ttl}
}

// SetShutdownStatus marks every instance for shutdown and audits one event
// per instance. Idempotent: re-marking an already-marked instance leaves it
// marked, refreshes the TTL and appends another audit event.
func (m *Manager) SetShutdownStatus(ctx context.Context, group string, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	if err := m.store.SetShutdownStatus(ctx, instanceIDs, true, m.ttl); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	for _, id := range instanceIDs {
		if err := m.audit.RequestToTerminate(ctx, group, id); err != nil {
			return err
		}
	}
	return nil
}

// GetShutdownStatus reports whether instanceID has a live shutdown marker.
func (m *Manager) GetShutdownStatus(ctx context.Context, instanceID string) (bool, error) {
	ok, err := m.store.GetShutdownStatus(ctx, instanceID)
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return ok, nil
}

// GetShutdownStatuses bulk-reads shutdown markers for a group's instances.
func (m *Manager) GetShutdownStatuses(ctx context.Context, group string, instanceIDs []string) (map[string]bool, error) {
	out, err := m.store.GetShutdownStatuses(ctx, group, instanceIDs)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return out, nil
}

// ConfirmShutdown records a confirmation for instanceID -- called by the
// tracker when a side-car report arrives for an already-marked instance.
// No HTTP endpoint calls it.
func (m *Manager) ConfirmShutdown(ctx context.Context, group, instanceID string, at time.Time) error {
	if err := m.store.SetShutdownConfirmation(ctx, instanceID, at, m.ttl); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return m.audit.ShutdownConfirmation(ctx, group, instanceID)
}

// GetShutdownConfirmation returns the confirmation timestamp, if any.
func (m *Manager) GetShutdownConfirmation(ctx context.Context, instanceID string) (*time.Time, error) {
	t, err := m.store.GetShutdownConfirmation(ctx, instanceID)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return t, nil
}

// GetShutdownConfirmations bulk-reads confirmations for a group's instances.
func (m *Manager) GetShutdownConfirmations(ctx context.Context, group string, instanceIDs []string) (map[string]time.Time, error) {
	out, err := m.store.GetShutdownConfirmations(ctx, group, instanceIDs)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return out, nil
}
