// Package group implements the InstanceGroupManager of spec.md §4.2: group
// CRUD plus the grace-period gates that keep the autoscaler and launcher
// from acting on a group too soon after its last action.
package group

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

// Manager owns the set of managed groups and their grace-period gates.
type Manager struct {
	store store.InstanceStore
	now   func() time.Time
}

// New builds a group Manager.
func New(st store.InstanceStore) *Manager {
	return &Manager{store: st, now: time.Now}
}

// Get returns the named group, or nil if it does not exist.
func (m *Manager) Get(ctx context.Context, name string) (*model.InstanceGroup, error) {
	g, err := m.store.GetInstanceGroup(ctx, name)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return g, nil
}

// List returns every managed group, sorted by name.
func (m *Manager) List(ctx context.Context) ([]model.InstanceGroup, error) {
	groups, err := m.store.GetAllInstanceGroups(ctx)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// Upsert validates and stores group, clamping its desired count first.
func (m *Manager) Upsert(ctx context.Context, g model.InstanceGroup) error {
	g.ScalingOptions.Clamp()
	if err := g.ScalingOptions.Validate(); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrValidation, err)
	}
	if err := m.store.UpsertInstanceGroup(ctx, g); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

// Delete removes a group and all of its state.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.store.DeleteInstanceGroup(ctx, name); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

// SetDesired updates a group's desired count, clamped to [min,max].
func (m *Manager) SetDesired(ctx context.Context, name string, desired int) (*model.InstanceGroup, error) {
	g, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", name))
	}

	g.ScalingOptions.DesiredCount = desired
	g.ScalingOptions.Clamp()
	if err := m.store.UpsertInstanceGroup(ctx, *g); err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return g, nil
}

// LaunchProtected bumps group's desired count by count (clamped into
// [min,max]) and, when instanceConfigurationID is non-empty, overrides the
// group's launch template -- the "launch-protected" admin action of
// spec.md §6. Callers arm the autoscale grace period and scale-down
// protection themselves afterward; this method only owns the group-record
// mutation.
func (m *Manager) LaunchProtected(ctx context.Context, name string, count int, instanceConfigurationID string) (*model.InstanceGroup, error) {
	g, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", name))
	}

	g.ScalingOptions.DesiredCount += count
	g.ScalingOptions.Clamp()
	if instanceConfigurationID != "" {
		g.InstanceConfigurationID = instanceConfigurationID
	}
	if err := m.store.UpsertInstanceGroup(ctx, *g); err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return g, nil
}

// IsAutoscalingAllowed reports whether group's autoscale grace period has
// elapsed. It is a pure peek -- spec.md §4.8 arms the grace period only as
// an explicit step after a successful desired-count change, never as a
// side effect of checking.
func (m *Manager) IsAutoscalingAllowed(ctx context.Context, group string) (bool, error) {
	return m.peek(ctx, store.AutoScaleGracePeriodKey(group))
}

// ArmAutoscaleGrace sets group's autoscale grace period for gracePeriod.
func (m *Manager) ArmAutoscaleGrace(ctx context.Context, group string, gracePeriod time.Duration) error {
	return m.arm(ctx, store.AutoScaleGracePeriodKey(group), gracePeriod)
}

// IsSanityCheckAllowed reports whether group's sanity-loop grace period
// has elapsed (peek only; see IsAutoscalingAllowed).
func (m *Manager) IsSanityCheckAllowed(ctx context.Context, group string) (bool, error) {
	return m.peek(ctx, store.SanityGracePeriodKey(group))
}

// ArmSanityGrace sets group's sanity-loop grace period for gracePeriod.
func (m *Manager) ArmSanityGrace(ctx context.Context, group string, gracePeriod time.Duration) error {
	return m.arm(ctx, store.SanityGracePeriodKey(group), gracePeriod)
}

// IsGroupJobsCreationAllowed reports whether the global producer grace
// period for autoscaler/launcher job creation has elapsed (peek only).
func (m *Manager) IsGroupJobsCreationAllowed(ctx context.Context) (bool, error) {
	return m.peek(ctx, store.GroupJobsCreationGracePeriodKey)
}

// ArmGroupJobsCreationGrace sets the global job-creation grace period.
func (m *Manager) ArmGroupJobsCreationGrace(ctx context.Context, gracePeriod time.Duration) error {
	return m.arm(ctx, store.GroupJobsCreationGracePeriodKey, gracePeriod)
}

// IsSanityJobsCreationAllowed reports whether the global producer grace
// period for sanity-job creation has elapsed (peek only).
func (m *Manager) IsSanityJobsCreationAllowed(ctx context.Context) (bool, error) {
	return m.peek(ctx, store.SanityJobsCreationGracePeriodKey)
}

// ArmSanityJobsCreationGrace sets the global sanity-job-creation grace
// period.
func (m *Manager) ArmSanityJobsCreationGrace(ctx context.Context, gracePeriod time.Duration) error {
	return m.arm(ctx, store.SanityJobsCreationGracePeriodKey, gracePeriod)
}

// IsScaleDownProtected reports whether group is protected from scale-down
// as a whole (the "launch-protected" admin action), as distinct from a
// single instance's protection marker.
func (m *Manager) IsScaleDownProtected(ctx context.Context, group string) (bool, error) {
	ok, err := m.store.CheckValue(ctx, store.GroupProtectedKey(group))
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return ok, nil
}

// ProtectGroup marks group as scale-down protected for ttl.
func (m *Manager) ProtectGroup(ctx context.Context, group string, ttl time.Duration) error {
	if err := m.store.SetValue(ctx, store.GroupProtectedKey(group), "1", ttl); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

// peek is the read-only half of the setValue/checkValue grace-timer
// primitive (spec.md §4.2): it reports whether key is currently unset,
// i.e. whether the grace period has elapsed. It never writes -- callers
// that decide to act on a "yes" must arm the gate themselves afterward,
// so a check that leads to no action leaves the gate untouched.
func (m *Manager) peek(ctx context.Context, key string) (bool, error) {
	active, err := m.store.CheckValue(ctx, key)
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return !active, nil
}

// arm is the write half: it sets key for gracePeriod, closing the gate.
// A gracePeriod of zero or less means "no cooldown configured" and is a
// deliberate no-op -- store.SetValue treats a non-positive ttl as "never
// expires," so arming with one would close the gate permanently instead
// of leaving it effectively always-open.
func (m *Manager) arm(ctx context.Context, key string, gracePeriod time.Duration) error {
	if gracePeriod <= 0 {
		return nil
	}
	if err := m.store.SetValue(ctx, key, m.now().Format(time.RFC3339Nano), gracePeriod); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

// SeedGroups unconditionally upserts every entry in groups. Per spec.md
// §4.2 this only ever runs once, at startup, and only when the store has
// no group at all yet -- callers gate the call on
// store.ExistsAtLeastOneGroup themselves; SeedGroups does not re-check
// per entry, so calling it against a non-empty store would clobber
// operator edits.
func (m *Manager) SeedGroups(ctx context.Context, groups []model.InstanceGroup) error {
	for _, g := range groups {
		if err := m.Upsert(ctx, g); err != nil {
			return fmt.Errorf("could not seed group %q: %w", g.Name, err)
		}
	}
	return nil
}

// ResetGroups re-applies every field of each seed entry to the store
// except desiredCount, which is left at its current live value when the
// group already exists -- the "POST /groups/reset" admin action of
// spec.md §6. A seed entry naming a group that does not exist yet is
// created as given.
func (m *Manager) ResetGroups(ctx context.Context, groups []model.InstanceGroup) error {
	for _, g := range groups {
		existing, err := m.Get(ctx, g.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			g.ScalingOptions.DesiredCount = existing.ScalingOptions.DesiredCount
		}
		if err := m.Upsert(ctx, g); err != nil {
			return fmt.Errorf("could not reset group %q: %w", g.Name, err)
		}
	}
	return nil
}
