// Package metricsloop implements the MetricsLoop, SanityLoop and
// GroupReport of spec.md §4.11: periodic cache refresh of Prometheus
// gauges and cloud inventory, and the operator-facing per-group report.
package metricsloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/cloud"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/promexport"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

// MetricsLoop refreshes the Prometheus gauges named in spec.md §9 from
// current tracker inventory and cloud enumeration, on a timer owned by its
// caller (the interval itself lives in config, not here).
type MetricsLoop struct {
	groups   *group.Manager
	tracker  *tracker.Tracker
	store    store.InstanceStore
	clouds   map[string]cloud.Manager
	exporter *promexport.Exporter
	log      *slog.Logger
}

// New builds a MetricsLoop.
func New(groups *group.Manager, trk *tracker.Tracker, st store.InstanceStore, clouds map[string]cloud.Manager, exporter *promexport.Exporter, log *slog.Logger) *MetricsLoop {
	if log == nil {
		log = slog.Default()
	}
	return &MetricsLoop{groups: groups, tracker: trk, store: st, clouds: clouds, exporter: exporter, log: log}
}

// Refresh updates every gauge for every managed group. Per-group failures
// (a cloud adapter erroring on Enumerate, say) are logged and skipped
// rather than aborting the whole pass -- one unreachable cloud API must
// not blind the dashboard to every other group.
func (l *MetricsLoop) Refresh(ctx context.Context) error {
	groups, err := l.groups.List(ctx)
	if err != nil {
		return err
	}

	l.exporter.GroupsManaged.Set(float64(len(groups)))

	for _, g := range groups {
		if err := l.refreshGroup(ctx, g); err != nil {
			l.log.Warn("metrics refresh failed for group", "group", g.Name, "error", err)
		}
	}
	return nil
}

func (l *MetricsLoop) refreshGroup(ctx context.Context, g model.InstanceGroup) error {
	l.exporter.DesiredCount.WithLabelValues(g.Name).Set(float64(g.ScalingOptions.DesiredCount))
	l.exporter.MinDesired.WithLabelValues(g.Name).Set(float64(g.ScalingOptions.MinDesired))
	l.exporter.MaxDesired.WithLabelValues(g.Name).Set(float64(g.ScalingOptions.MaxDesired))

	inventory, err := l.tracker.TrimCurrent(ctx, g, false)
	if err != nil {
		return err
	}
	l.exporter.InstanceCount.WithLabelValues(g.Name).Set(float64(len(inventory)))

	running := 0
	for _, s := range inventory {
		if !s.Provisioning && !s.IsShuttingDown {
			running++
		}
	}
	l.exporter.RunningCount.WithLabelValues(g.Name).Set(float64(running))

	if c, ok := l.clouds[g.Cloud]; ok {
		cloudInstances, err := c.Enumerate(ctx, g)
		if err != nil {
			return autoscalererr.Wrap(autoscalererr.ErrCloud, err)
		}
		l.exporter.CloudInstanceCount.WithLabelValues(g.Name).Set(float64(len(cloudInstances)))
	}

	untracked, ok, err := l.store.GetValue(ctx, store.UntrackedCountKey(g.Name))
	if err != nil {
		return err
	}
	if ok {
		var n int
		if _, err := fmt.Sscanf(untracked, "%d", &n); err == nil {
			l.exporter.UntrackedCount.WithLabelValues(g.Name).Set(float64(n))
		}
	}
	return nil
}

// SanityLoop compares tracker inventory against cloud enumeration and
// caches the untracked-instance count per group (spec.md §4.11), which the
// launcher's untracked-throttle reads back via store.GetValue.
type SanityLoop struct {
	groups  *group.Manager
	tracker *tracker.Tracker
	store   store.InstanceStore
	clouds  map[string]cloud.Manager
	locks   lock.Manager
	ttl     time.Duration
	log     *slog.Logger
}

// NewSanityLoop builds a SanityLoop. ttl bounds how long the cached
// untracked count survives before it reads as absent (config's
// UntrackedCountTTL).
func NewSanityLoop(groups *group.Manager, trk *tracker.Tracker, st store.InstanceStore, clouds map[string]cloud.Manager, locks lock.Manager, ttl time.Duration, log *slog.Logger) *SanityLoop {
	if log == nil {
		log = slog.Default()
	}
	return &SanityLoop{groups: groups, tracker: trk, store: st, clouds: clouds, locks: locks, ttl: ttl, log: log}
}

// Process runs one sanity pass for group (the reportUntrackedInstances job
// handler named in spec.md §4.10): it reports whether it made progress, in
// the same (bool, error) shape every other job handler uses. Like
// Autoscaler.Process and Launcher.Process, it holds the group lock for the
// duration of the pass so a sanity recount never overlaps an autoscale or
// launch reconcile on the same group.
func (s *SanityLoop) Process(ctx context.Context, groupName string) (bool, error) {
	log := s.log.With("group", groupName, "component", "sanity")

	lk, err := s.locks.LockGroup(ctx, groupName)
	if err != nil {
		log.Warn("could not acquire group lock", "error", err)
		return false, nil
	}
	defer func() { _ = lk.Release(ctx) }()

	g, err := s.groups.Get(ctx, groupName)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", groupName))
	}

	c, ok := s.clouds[g.Cloud]
	if !ok {
		return false, autoscalererr.Wrap(autoscalererr.ErrCloud, fmt.Errorf("no cloud adapter registered for %q", g.Cloud))
	}

	cloudInstances, err := c.Enumerate(ctx, *g)
	if err != nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrCloud, err)
	}

	inventory, err := s.tracker.TrimCurrent(ctx, *g, false)
	if err != nil {
		return false, err
	}
	tracked := make(map[string]struct{}, len(inventory))
	for _, state := range inventory {
		tracked[state.InstanceID] = struct{}{}
	}

	untracked := 0
	for _, ci := range cloudInstances {
		if ci.CloudStatus != model.CloudStatusRunning && ci.CloudStatus != model.CloudStatusProvisioning {
			continue
		}
		if _, found := tracked[ci.InstanceID]; !found {
			untracked++
		}
	}

	if err := s.store.SetValue(ctx, store.UntrackedCountKey(g.Name), fmt.Sprintf("%d", untracked), s.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// GroupReport composes the operator-facing per-instance and aggregate view
// of a group (spec.md §4.11's generateReport).
type GroupReport struct {
	tracker     *tracker.Tracker
	shutdown    *shutdown.Manager
	reconfigure *reconfigure.Manager
	groups      *group.Manager
	store       store.InstanceStore
	clouds      map[string]cloud.Manager
}

// NewGroupReport builds a GroupReport.
func NewGroupReport(groups *group.Manager, trk *tracker.Tracker, sm *shutdown.Manager, rm *reconfigure.Manager, st store.InstanceStore, clouds map[string]cloud.Manager) *GroupReport {
	return &GroupReport{groups: groups, tracker: trk, shutdown: sm, reconfigure: rm, store: st, clouds: clouds}
}

// InstanceRow is one instance's merged tracker/cloud/marker view.
type InstanceRow struct {
	InstanceID           string       `json:"instanceId"`
	ScaleStatus          model.Status `json:"scaleStatus,omitempty"`
	CloudStatus          string       `json:"cloudStatus,omitempty"`
	IsShuttingDown       bool         `json:"isShuttingDown"`
	ShutdownComplete     bool         `json:"shutdownComplete"`
	LastReconfigured     bool         `json:"lastReconfigured"`
	IsScaleDownProtected bool         `json:"isScaleDownProtected"`
	ReconfigureScheduled bool         `json:"reconfigureScheduled"`
	Untracked            bool         `json:"untracked"`
}

// Report is the full generateReport result: per-instance rows plus the
// aggregate counters operators read off the admin API.
type Report struct {
	Group             string        `json:"group"`
	Rows              []InstanceRow `json:"rows"`
	ProvisioningCount int           `json:"provisioningCount"`
	AvailableCount    int           `json:"availableCount"`
	BusyCount         int           `json:"busyCount"`
	ShuttingDownCount int           `json:"shuttingDownCount"`
	UntrackedCount    int           `json:"untrackedCount"`
}

// Generate builds the report for groupName. When cloudInstances is nil, the
// group's registered cloud adapter is enumerated; passing a non-nil slice
// lets callers (tests, or a caller that already enumerated for another
// purpose in the same request) skip the extra cloud round-trip.
func (r *GroupReport) Generate(ctx context.Context, groupName string, cloudInstances []model.CloudInstance) (*Report, error) {
	g, err := r.groups.Get(ctx, groupName)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", groupName))
	}

	if cloudInstances == nil {
		if c, ok := r.clouds[g.Cloud]; ok {
			cloudInstances, err = c.Enumerate(ctx, *g)
			if err != nil {
				return nil, autoscalererr.Wrap(autoscalererr.ErrCloud, err)
			}
		}
	}
	cloudByID := make(map[string]model.CloudInstance, len(cloudInstances))
	for _, ci := range cloudInstances {
		cloudByID[ci.InstanceID] = ci
	}

	states, err := r.tracker.TrimCurrent(ctx, *g, false)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.InstanceID
	}
	shutdownStatuses, err := r.shutdown.GetShutdownStatuses(ctx, groupName, ids)
	if err != nil {
		return nil, err
	}
	shutdownConfirmations, err := r.shutdown.GetShutdownConfirmations(ctx, groupName, ids)
	if err != nil {
		return nil, err
	}
	reconfigureDates, err := r.reconfigure.GetReconfigureDates(ctx, groupName, ids)
	if err != nil {
		return nil, err
	}
	protected, err := r.store.AreScaleDownProtected(ctx, groupName, ids)
	if err != nil {
		return nil, err
	}

	report := &Report{Group: groupName}
	trackedIDs := make(map[string]struct{}, len(states))

	for i, s := range states {
		trackedIDs[s.InstanceID] = struct{}{}
		ci, hasCloud := cloudByID[s.InstanceID]

		row := InstanceRow{
			InstanceID:           s.InstanceID,
			ScaleStatus:          s.Status,
			IsShuttingDown:       s.IsShuttingDown || shutdownStatuses[s.InstanceID],
			ShutdownComplete:     hasShutdownConfirmation(shutdownConfirmations, s.InstanceID),
			LastReconfigured:     s.LastReconfigured != nil,
			IsScaleDownProtected: protected[i],
			ReconfigureScheduled: hasReconfigureDate(reconfigureDates, s.InstanceID),
		}
		if hasCloud {
			row.CloudStatus = ci.CloudStatus
		}
		report.Rows = append(report.Rows, row)

		switch {
		case s.Provisioning:
			report.ProvisioningCount++
		case row.IsShuttingDown:
			report.ShuttingDownCount++
		case isIdle(s.Status):
			report.AvailableCount++
		default:
			report.BusyCount++
		}
	}

	for _, ci := range cloudInstances {
		if ci.CloudStatus != model.CloudStatusRunning && ci.CloudStatus != model.CloudStatusProvisioning {
			continue
		}
		if _, found := trackedIDs[ci.InstanceID]; found {
			continue
		}
		report.Rows = append(report.Rows, InstanceRow{InstanceID: ci.InstanceID, CloudStatus: ci.CloudStatus, Untracked: true})
		report.UntrackedCount++
	}

	return report, nil
}

func hasShutdownConfirmation(m map[string]time.Time, id string) bool {
	_, ok := m[id]
	return ok
}

func hasReconfigureDate(m map[string]time.Time, id string) bool {
	_, ok := m[id]
	return ok
}

func isIdle(status model.Status) bool {
	av, ok := status.(model.AvailabilityStatus)
	return ok && av.BusyStatus == model.BusyStatusIdle
}
