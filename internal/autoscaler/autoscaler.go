// Package autoscaler implements the AutoscaleProcessor of spec.md §4.8: the
// per-group decision that adjusts desiredCount within [min,max] using a
// windowed metric over N periods.
package autoscaler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

// Processor runs processAutoscalingByGroup for one group at a time.
type Processor struct {
	groups  *group.Manager
	tracker *tracker.Tracker
	audit   *audit.Log
	locks   lock.Manager
	log     *slog.Logger
}

// New builds a Processor.
func New(groups *group.Manager, trk *tracker.Tracker, auditLog *audit.Log, locks lock.Manager, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{groups: groups, tracker: trk, audit: auditLog, locks: locks, log: log}
}

// Process runs the eleven-step decision procedure for group and reports
// whether it made progress worth a fast re-check (true), should back off
// (false), or failed outright (error).
func (p *Processor) Process(ctx context.Context, groupName string) (bool, error) {
	log := p.log.With("group", groupName, "component", "autoscaler")

	// Step 1: acquire the per-group lock (property P8).
	l, err := p.locks.LockGroup(ctx, groupName)
	if err != nil {
		log.Warn("could not acquire group lock", "error", err)
		return false, nil
	}
	defer func() { _ = l.Release(ctx) }()

	// Step 2: load the group and check its gates.
	g, err := p.groups.Get(ctx, groupName)
	if err != nil {
		return false, err
	}
	if g == nil {
		return false, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", groupName))
	}
	if !g.EnableAutoScale {
		log.Debug("autoscaling disabled for group")
		return false, nil
	}
	allowed, err := p.groups.IsAutoscalingAllowed(ctx, groupName)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	// Step 3: audit the run before doing anything else.
	if err := p.audit.UpdateLastAutoScalerRun(ctx, groupName); err != nil {
		return false, err
	}

	// Step 4: current inventory.
	inventory, err := p.tracker.TrimCurrent(ctx, *g, true)
	if err != nil {
		return false, err
	}
	count := len(inventory)
	if count == 0 {
		return false, nil
	}

	// Step 5: only adjust desired when actual has caught up.
	if count != g.ScalingOptions.DesiredCount {
		log.Debug("waiting for launcher to converge", "count", count, "desired", g.ScalingOptions.DesiredCount)
		return true, nil
	}

	// Steps 6-7: windowed metric buckets.
	opts := g.ScalingOptions
	periods := opts.MaxPeriodsCount()
	buckets, err := p.tracker.GetMetricInventoryPerPeriod(ctx, groupName, periods, opts.ScalePeriod)
	if err != nil {
		return false, err
	}
	metrics, err := p.tracker.GetSummaryMetricPerPeriod(*g, buckets, periods)
	if err != nil {
		return false, err
	}
	if len(metrics) == 0 {
		log.Warn("no summary metric available for group")
		return true, nil
	}

	// Step 8: scale-up predicate.
	if windowAgrees(metrics, opts.ScaleUpPeriodsCount, count, opts, g.Type, scaleUpBucket) {
		newDesired := min(opts.DesiredCount+opts.ScaleUpQuantity, opts.MaxDesired)
		window := metrics[:opts.ScaleUpPeriodsCount]
		return true, p.applyDesired(ctx, g, newDesired, model.ActionIncreaseDesiredCount, count, window)
	}

	// Step 9: scale-down predicate.
	if windowAgrees(metrics, opts.ScaleDownPeriodsCount, count, opts, g.Type, scaleDownBucket) {
		newDesired := max(opts.DesiredCount-opts.ScaleDownQuantity, opts.MinDesired)
		window := metrics[:opts.ScaleDownPeriodsCount]
		return true, p.applyDesired(ctx, g, newDesired, model.ActionDecreaseDesiredCount, count, window)
	}

	// Step 10: no action.
	log.Debug("no scaling action needed", "desired", opts.DesiredCount, "count", count)
	return true, nil
}

// applyDesired audits the decision, persists the new desired count and
// arms the grace period -- in that order, so a crash between audit and
// persist leaves a reconstructable cause->effect trail (property P9).
func (p *Processor) applyDesired(ctx context.Context, g *model.InstanceGroup, newDesired int, action model.AutoscalerActionType, count int, window []float64) error {
	if err := p.audit.AutoscalerAction(ctx, g.Name, model.AutoscalerActionPayload{
		Timestamp:       time.Now(),
		ActionType:      action,
		Count:           count,
		OldDesiredCount: g.ScalingOptions.DesiredCount,
		NewDesiredCount: newDesired,
		ScaleMetrics:    window,
	}); err != nil {
		return err
	}

	g.ScalingOptions.DesiredCount = newDesired
	g.ScalingOptions.Clamp()
	if err := p.groups.Upsert(ctx, *g); err != nil {
		return err
	}

	return p.groups.ArmAutoscaleGrace(ctx, g.Name, time.Duration(g.GracePeriodTTLSec)*time.Second)
}

// bucketPredicate evaluates one bucket's summary metric against a group's
// scaling options for a given instance-type family.
type bucketPredicate func(metric float64, count int, opts model.ScalingOptions, instanceType model.InstanceType) bool

// windowAgrees implements the "all buckets in the window must agree"
// unanimity rule (property P2): the first windowSize entries of metrics
// (newest first) must all satisfy predicate.
func windowAgrees(metrics []float64, windowSize, count int, opts model.ScalingOptions, instanceType model.InstanceType, predicate bucketPredicate) bool {
	if windowSize <= 0 || windowSize > len(metrics) {
		return false
	}
	for i := 0; i < windowSize; i++ {
		if !predicate(metrics[i], count, opts, instanceType) {
			return false
		}
	}
	return true
}

// scaleUpBucket and scaleDownBucket implement spec.md §4.8's predicate
// table. The direction of metric-vs-threshold flips between families
// because "available" rises with slack while "stress" falls with it.
func scaleUpBucket(metric float64, count int, opts model.ScalingOptions, instanceType model.InstanceType) bool {
	if count < opts.MinDesired {
		return true
	}
	if count >= opts.MaxDesired {
		return false
	}
	if instanceType.IsAvailabilityFamily() {
		return metric < opts.ScaleUpThreshold
	}
	return metric >= opts.ScaleUpThreshold
}

func scaleDownBucket(metric float64, count int, opts model.ScalingOptions, instanceType model.InstanceType) bool {
	if count <= opts.MinDesired {
		return false
	}
	if instanceType.IsAvailabilityFamily() {
		return metric > opts.ScaleDownThreshold
	}
	return metric < opts.ScaleDownThreshold
}
