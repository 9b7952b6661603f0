// Package reconfigure implements the ReconfigureManager of spec.md §4.4: the
// same mark/confirm pattern as shutdown, but cleared (not just confirmed)
// once a side-car reports reconfigureComplete >= the stored date.
package reconfigure

import (
	"context"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

// Manager marks and clears reconfigure intent.
type Manager struct {
	store store.InstanceStore
	audit *audit.Log
	ttl   time.Duration
}

// New builds a reconfigure manager with the reconfigureTTL from spec.md §6.
func New(st store.InstanceStore, auditLog *audit.Log, ttl time.Duration) *Manager {
	return &Manager{store: st, audit: auditLog, ttl: ttl}
}

// SetReconfigureDate marks every instance with the given reconfigure date
// and audits one event per instance.
func (m *Manager) SetReconfigureDate(ctx context.Context, group string, instanceIDs []string, date time.Time) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	if err := m.store.SetReconfigureDate(ctx, instanceIDs, date, m.ttl); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	for _, id := range instanceIDs {
		if err := m.audit.Reconfigure(ctx, group, id); err != nil {
			return err
		}
	}
	return nil
}

// GetReconfigureDate returns the stored reconfigure date for instanceID, if
// any.
func (m *Manager) GetReconfigureDate(ctx context.Context, instanceID string) (*time.Time, error) {
	t, err := m.store.GetReconfigureDate(ctx, instanceID)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return t, nil
}

// GetReconfigureDates bulk-reads reconfigure dates for a group's instances.
func (m *Manager) GetReconfigureDates(ctx context.Context, group string, instanceIDs []string) (map[string]time.Time, error) {
	out, err := m.store.GetReconfigureDates(ctx, group, instanceIDs)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return out, nil
}

// ReconcileComplete clears the reconfigure marker when the side-car's
// reconfigureComplete timestamp is at or after the stored reconfigure date.
// Returns true if the marker was cleared.
func (m *Manager) ReconcileComplete(ctx context.Context, group, instanceID string, reconfigureComplete time.Time) (bool, error) {
	stored, err := m.GetReconfigureDate(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if stored == nil || reconfigureComplete.Before(*stored) {
		return false, nil
	}

	if err := m.store.UnsetReconfigureDate(ctx, instanceID, group); err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	if err := m.audit.UnsetReconfigure(ctx, group, instanceID); err != nil {
		return false, err
	}
	return true, nil
}
