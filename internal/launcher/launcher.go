// Package launcher implements the InstanceLauncher of spec.md §4.9: it
// reconciles a group's tracked inventory against its desired count by
// launching new instances or marking the lowest-priority instances for
// scale-down.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/cloud"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/promexport"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

// Config bounds the untracked-instance throttle, the one launcher knob that
// is global rather than per-group (spec.md §4.9, §6).
type Config struct {
	MaxThrottleThreshold int
}

// Launcher runs launchOrShutdownInstancesByGroup for one group at a time.
type Launcher struct {
	groups   *group.Manager
	tracker  *tracker.Tracker
	audit    *audit.Log
	shutdown *shutdown.Manager
	store    store.InstanceStore
	locks    lock.Manager
	clouds   map[string]cloud.Manager
	exporter *promexport.Exporter
	cfg      Config
	log      *slog.Logger
}

// New builds a Launcher. clouds maps a group's Cloud field to the adapter
// that manages it.
func New(groups *group.Manager, trk *tracker.Tracker, auditLog *audit.Log, shutdownMgr *shutdown.Manager, st store.InstanceStore, locks lock.Manager, clouds map[string]cloud.Manager, exporter *promexport.Exporter, cfg Config, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{groups: groups, tracker: trk, audit: auditLog, shutdown: shutdownMgr, store: st, locks: locks, clouds: clouds, exporter: exporter, cfg: cfg, log: log}
}

// Process runs the five-step launch/shutdown reconciliation for group.
func (l *Launcher) Process(ctx context.Context, groupName string) (bool, error) {
	log := l.log.With("group", groupName, "component", "launcher")

	lk, err := l.locks.LockGroup(ctx, groupName)
	if err != nil {
		log.Warn("could not acquire group lock", "error", err)
		return false, nil
	}
	defer func() { _ = lk.Release(ctx) }()

	g, err := l.groups.Get(ctx, groupName)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", groupName))
	}
	if !g.EnableLaunch {
		log.Debug("launch disabled for group")
		return false, nil
	}
	if err := l.audit.UpdateLastLauncherRun(ctx, groupName); err != nil {
		return false, err
	}

	inventory, err := l.tracker.TrimCurrent(ctx, *g, true)
	if err != nil {
		return false, err
	}
	count := len(inventory)
	opts := g.ScalingOptions

	switch {
	case count < opts.DesiredCount && count < opts.MaxDesired:
		return true, l.scaleUp(ctx, log, g, count)
	case count > opts.DesiredCount && count > opts.MinDesired:
		return true, l.scaleDown(ctx, log, g, inventory)
	default:
		log.Debug("no launch action needed", "count", count, "desired", opts.DesiredCount)
		return true, nil
	}
}

func (l *Launcher) scaleUp(ctx context.Context, log *slog.Logger, g *model.InstanceGroup, count int) error {
	opts := g.ScalingOptions
	want := min(opts.DesiredCount, opts.MaxDesired) - count
	if want <= 0 {
		return nil
	}

	if g.EnableUntrackedThrottle {
		untracked, err := l.untrackedCount(ctx, g.Name)
		if err != nil {
			return err
		}
		threshold := min(opts.MaxDesired+1, l.cfg.MaxThrottleThreshold)
		if untracked >= threshold {
			l.exporter.InstanceErrors.WithLabelValues(g.Name, "throttled").Inc()
			return autoscalererr.Wrap(autoscalererr.ErrThrottled, fmt.Errorf("group %q has %d untracked instances, refusing to launch this pass", g.Name, untracked))
		}
	}

	cloudMgr, err := l.cloudFor(g)
	if err != nil {
		l.exporter.InstanceErrors.WithLabelValues(g.Name, "cloud").Inc()
		return err
	}

	launched, err := cloudMgr.Launch(ctx, *g, want)
	if err != nil {
		l.exporter.InstanceErrors.WithLabelValues(g.Name, "cloud").Inc()
		return autoscalererr.Wrap(autoscalererr.ErrCloud, err)
	}
	for _, inst := range launched {
		if err := l.tracker.MarkProvisioning(ctx, g.Name, inst.InstanceID); err != nil {
			return err
		}
		if err := l.audit.RequestToLaunch(ctx, g.Name, inst.InstanceID); err != nil {
			return err
		}
		l.exporter.InstancesLaunched.WithLabelValues(g.Name).Inc()
	}

	if err := l.audit.LauncherAction(ctx, g.Name, model.LauncherActionPayload{
		Timestamp:     time.Now(),
		ActionType:    model.ActionScaleUp,
		Count:         count,
		DesiredCount:  opts.DesiredCount,
		ScaleQuantity: len(launched),
	}); err != nil {
		return err
	}

	if len(launched) == 0 {
		l.exporter.InstanceErrors.WithLabelValues(g.Name, "cloud").Inc()
		return autoscalererr.Wrap(autoscalererr.ErrCloud, fmt.Errorf("group %q: cloud launched 0 of %d requested instances", g.Name, want))
	}
	if len(launched) < want {
		log.Warn("cloud launched fewer instances than requested", "want", want, "got", len(launched))
		l.exporter.InstanceErrors.WithLabelValues(g.Name, "cloud").Inc()
		return autoscalererr.Wrap(autoscalererr.ErrCloud, fmt.Errorf("group %q: cloud launched %d of %d requested instances", g.Name, len(launched), want))
	}
	return nil
}

func (l *Launcher) scaleDown(ctx context.Context, log *slog.Logger, g *model.InstanceGroup, inventory []model.InstanceState) error {
	opts := g.ScalingOptions
	desiredQuantity := len(inventory) - max(opts.MinDesired, opts.DesiredCount)
	if desiredQuantity <= 0 {
		return nil
	}

	victims, err := l.selectVictims(ctx, g, inventory, desiredQuantity)
	if err != nil {
		return err
	}
	if len(victims) < desiredQuantity {
		log.Warn("fewer scale-down candidates than requested", "want", desiredQuantity, "got", len(victims))
	}
	if len(victims) == 0 {
		return nil
	}

	if err := l.shutdown.SetShutdownStatus(ctx, g.Name, victims); err != nil {
		return err
	}
	l.exporter.InstancesDownscaled.WithLabelValues(g.Name).Add(float64(len(victims)))

	return l.audit.LauncherAction(ctx, g.Name, model.LauncherActionPayload{
		Timestamp:     time.Now(),
		ActionType:    model.ActionScaleDown,
		Count:         len(inventory),
		DesiredCount:  opts.DesiredCount,
		ScaleQuantity: len(victims),
	})
}

// selectVictims implements spec.md §4.9's family-specific victim ordering,
// after filtering out scale-down-protected instances (property P4).
func (l *Launcher) selectVictims(ctx context.Context, g *model.InstanceGroup, inventory []model.InstanceState, quantity int) ([]string, error) {
	ids := make([]string, len(inventory))
	for i, s := range inventory {
		ids[i] = s.InstanceID
	}
	protected, err := l.store.AreScaleDownProtected(ctx, g.Name, ids)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	var unprotected []model.InstanceState
	for i, s := range inventory {
		if i < len(protected) && protected[i] {
			continue
		}
		unprotected = append(unprotected, s)
	}

	var ordered []model.InstanceState
	if g.Type.IsAvailabilityFamily() {
		ordered = orderAvailabilityVictims(unprotected)
	} else {
		ordered = orderStressVictims(unprotected)
	}

	if quantity > len(ordered) {
		quantity = len(ordered)
	}
	out := make([]string, quantity)
	for i := 0; i < quantity; i++ {
		out[i] = ordered[i].InstanceID
	}
	return out, nil
}

// orderAvailabilityVictims concatenates provisioning-or-statusless, idle,
// expired, then busy instances, in that priority order.
func orderAvailabilityVictims(states []model.InstanceState) []model.InstanceState {
	var provisioning, idle, expired, busy []model.InstanceState
	for _, s := range states {
		avail, ok := s.Status.(model.AvailabilityStatus)
		switch {
		case s.Provisioning || !ok:
			provisioning = append(provisioning, s)
		case avail.BusyStatus == model.BusyStatusIdle:
			idle = append(idle, s)
		case avail.BusyStatus == model.BusyStatusExpired:
			expired = append(expired, s)
		default:
			busy = append(busy, s)
		}
	}
	out := make([]model.InstanceState, 0, len(states))
	out = append(out, provisioning...)
	out = append(out, idle...)
	out = append(out, expired...)
	out = append(out, busy...)
	return out
}

// orderStressVictims puts provisioning-or-statusless instances first, then
// the remaining running instances sorted by ascending scale-down metric
// (the least-loaded instance is the best victim).
func orderStressVictims(states []model.InstanceState) []model.InstanceState {
	var provisioning, running []model.InstanceState
	for _, s := range states {
		if s.Provisioning || s.Status == nil {
			provisioning = append(provisioning, s)
			continue
		}
		running = append(running, s)
	}

	sort.SliceStable(running, func(i, j int) bool {
		return scaleDownMetric(running[i]) < scaleDownMetric(running[j])
	})

	out := make([]model.InstanceState, 0, len(states))
	out = append(out, provisioning...)
	out = append(out, running...)
	return out
}

func scaleDownMetric(s model.InstanceState) float64 {
	switch status := s.Status.(type) {
	case model.StressStatus:
		return status.ScaleDownMetric()
	case model.NomadStatus:
		return status.StressLevel()
	default:
		return 0
	}
}

func (l *Launcher) untrackedCount(ctx context.Context, groupName string) (int, error) {
	raw, ok, err := l.store.GetValue(ctx, store.UntrackedCountKey(groupName))
	if err != nil {
		return 0, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	if !ok {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, nil
	}
	return n, nil
}

func (l *Launcher) cloudFor(g *model.InstanceGroup) (cloud.Manager, error) {
	mgr, ok := l.clouds[g.Cloud]
	if !ok {
		return nil, autoscalererr.Wrap(autoscalererr.ErrValidation, fmt.Errorf("no cloud adapter registered for %q", g.Cloud))
	}
	return mgr, nil
}
