// Package tracker implements the InstanceTracker of spec.md §4.5: it
// ingests side-car reports, buckets metric history into periods, computes
// each group's summary metric, and maintains live inventory. Per §9's
// layering redesign, Tracker depends on shutdown, reconfigure, store and
// audit, and none of those depends back on tracker.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

// Tracker is the instance registry and metrics core.
type Tracker struct {
	store       store.InstanceStore
	shutdown    *shutdown.Manager
	reconfigure *reconfigure.Manager
	audit       *audit.Log

	ttl       store.TTLConfig
	metricTTL time.Duration

	now func() time.Time
}

// New builds a Tracker. now defaults to time.Now; tests may override it.
func New(st store.InstanceStore, sm *shutdown.Manager, rm *reconfigure.Manager, auditLog *audit.Log, ttl store.TTLConfig, metricTTL time.Duration) *Tracker {
	return &Tracker{store: st, shutdown: sm, reconfigure: rm, audit: auditLog, ttl: ttl, metricTTL: metricTTL, now: time.Now}
}

// Stats ingests one side-car report (spec.md §4.5's "stats" operation).
// Ingestion never fails the caller for parse errors in report.Stats --
// the classify error is dropped without logging and this method simply
// leaves the status unset, matching spec.md §7's "side-car ingestion never fails the
// endpoint" rule.
func (t *Tracker) Stats(ctx context.Context, report model.StatsReport, shutdownStatusOverride bool) error {
	ts := t.now()
	if report.Timestamp != nil {
		ts = *report.Timestamp
	}

	state := model.InstanceState{
		InstanceID:       report.InstanceID,
		InstanceType:     report.InstanceType,
		Provisioning:     false,
		Timestamp:        ts,
		Metadata:         report.Instance,
		ShutdownStatus:   report.ShutdownStatus,
		ReconfigureError: report.ReconfigureError,
		ShutdownError:    report.ShutdownError,
		StatsError:       report.StatsError,
	}

	var status model.Status
	if len(report.Stats) > 0 && report.StatsError == "" {
		parsed, err := classify(report.InstanceType, report.Stats)
		if err != nil {
			// Left unset deliberately -- see doc comment above.
			status = nil
		} else {
			status = parsed
		}
	}
	state.Status = status

	shuttingDown := shutdownStatusOverride || report.ShutdownStatus
	if status != nil {
		shuttingDown = isShuttingDown(shuttingDown, status)
	}
	state.IsShuttingDown = shuttingDown

	group := report.Instance.Group
	if group == "" {
		group = "default"
	}

	// A report for an instance already marked for shutdown confirms that
	// mark -- the side-car is still alive and the tracker has heard from
	// it since the mark was set.
	if marked, err := t.shutdown.GetShutdownStatus(ctx, report.InstanceID); err == nil && marked {
		if err := t.shutdown.ConfirmShutdown(ctx, group, report.InstanceID, ts); err != nil {
			return err
		}
	}

	if report.ReconfigureComplete != nil {
		if _, err := t.reconfigure.ReconcileComplete(ctx, group, report.InstanceID, *report.ReconfigureComplete); err != nil {
			return err
		}
		state.LastReconfigured = report.ReconfigureComplete
	}

	return t.track(ctx, state, shuttingDown)
}

// track persists state, derives and records a metric point when
// appropriate, and appends the latest-status audit event (spec.md §4.5).
func (t *Tracker) track(ctx context.Context, state model.InstanceState, shuttingDown bool) error {
	group := state.Metadata.Group
	if group == "" {
		group = "default"
	}

	if err := t.store.SaveInstanceStatus(ctx, group, state); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	if !state.Provisioning && !shuttingDown && state.Status != nil {
		if value, ok := metricValue(state.Status); ok {
			metric := model.InstanceMetric{InstanceID: state.InstanceID, Timestamp: state.Timestamp, Value: value}
			if err := t.store.SaveMetric(ctx, group, metric, t.metricTTL); err != nil {
				return autoscalererr.Wrap(autoscalererr.ErrStore, err)
			}
		}
	}

	return t.audit.LatestStatus(ctx, group, state.InstanceID)
}

// MarkProvisioning records a freshly-launched instance as
// {provisioning:true}, as the launcher does immediately after a successful
// cloud launch (spec.md §3's InstanceState lifecycle).
func (t *Tracker) MarkProvisioning(ctx context.Context, group, instanceID string) error {
	state := model.InstanceState{
		InstanceID:   instanceID,
		Provisioning: true,
		Timestamp:    t.now(),
		Metadata:     model.Metadata{Group: group},
	}
	return t.store.SaveInstanceStatus(ctx, group, state)
}

// TrimCurrent returns the group's live inventory: TTL-expired rows are
// deleted from storage by FilterOutAndTrimExpiredStates, and when
// filterShutdown is true, instances that are shutting down or have already
// confirmed shutdown are excluded too (spec.md §4.5, property P5).
func (t *Tracker) TrimCurrent(ctx context.Context, group model.InstanceGroup, filterShutdown bool) ([]model.InstanceState, error) {
	states, err := t.store.FetchInstanceStates(ctx, group.Name)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	states, err = t.store.FilterOutAndTrimExpiredStates(ctx, group.Name, states, t.ttl)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	if !filterShutdown {
		return states, nil
	}

	ids := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.InstanceID
	}

	shuttingDown, err := t.shutdown.GetShutdownStatuses(ctx, group.Name, ids)
	if err != nil {
		return nil, err
	}
	confirmed, err := t.shutdown.GetShutdownConfirmations(ctx, group.Name, ids)
	if err != nil {
		return nil, err
	}

	live := make([]model.InstanceState, 0, len(states))
	for _, s := range states {
		if s.IsShuttingDown || shuttingDown[s.InstanceID] {
			continue
		}
		if _, done := confirmed[s.InstanceID]; done {
			continue
		}
		live = append(live, s)
	}
	return live, nil
}

// ErrEmptyMetrics is returned by GetSummaryMetricPerPeriod when a group's
// type is not one of the recognized families.
var ErrEmptyMetrics = fmt.Errorf("no summary metric defined for this group type")
