package tracker

import (
	"context"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// GetMetricInventoryPerPeriod returns periodsCount buckets of metric points,
// bucket 0 being the newest (spec.md §4.5). Property P6 (bucket hygiene) and
// P7 (carry-forward only fills real gaps) both hold by construction here.
func (t *Tracker) GetMetricInventoryPerPeriod(ctx context.Context, group string, periodsCount int, periodDurationSeconds int) ([][]model.InstanceMetric, error) {
	if periodsCount <= 0 || periodDurationSeconds <= 0 {
		return nil, nil
	}

	periodDuration := time.Duration(periodDurationSeconds) * time.Second
	now := t.now()
	since := now.Add(-periodDuration * time.Duration(periodsCount))

	raw, err := t.store.FetchMetrics(ctx, group, since)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	buckets := make([][]model.InstanceMetric, periodsCount)
	for _, m := range raw {
		idx := int(now.Sub(m.Timestamp) / periodDuration)
		if idx < 0 || idx >= periodsCount {
			continue
		}
		buckets[idx] = append(buckets[idx], m)
	}

	applyCarryForward(buckets)

	return buckets, nil
}

// applyCarryForward implements spec.md §4.5's carry-forward rule / property
// P7: an instance missing from bucket i is filled with its most recent
// point from bucket i+1, but only when bucket i+1 has it (unconditional)
// and -- unless i==0 -- bucket i-1 also has it. Membership checks use the
// ORIGINAL buckets so fills never cascade across more than one gap.
func applyCarryForward(buckets [][]model.InstanceMetric) {
	n := len(buckets)
	if n < 2 {
		return
	}

	original := make([][]model.InstanceMetric, n)
	copy(original, buckets)

	hasInstance := func(bucket []model.InstanceMetric, instanceID string) (model.InstanceMetric, bool) {
		var latest model.InstanceMetric
		found := false
		for _, m := range bucket {
			if m.InstanceID != instanceID {
				continue
			}
			if !found || m.Timestamp.After(latest.Timestamp) {
				latest = m
				found = true
			}
		}
		return latest, found
	}

	// Every instance that appears anywhere in the original metric history.
	seen := map[string]struct{}{}
	for _, bucket := range original {
		for _, m := range bucket {
			seen[m.InstanceID] = struct{}{}
		}
	}

	for i := n - 2; i >= 0; i-- {
		for instanceID := range seen {
			if _, present := hasInstance(original[i], instanceID); present {
				continue
			}

			olderPoint, presentOlder := hasInstance(original[i+1], instanceID)
			if !presentOlder {
				continue
			}

			if i > 0 {
				if _, presentNewer := hasInstance(original[i-1], instanceID); !presentNewer {
					continue
				}
			}

			buckets[i] = append(buckets[i], olderPoint)
		}
	}
}

// GetSummaryMetricPerPeriod reduces each bucket to a single scalar per
// spec.md §4.5: "available" sums per-instance means for the availability
// family, "average" averages per-instance means for the stress family.
func (t *Tracker) GetSummaryMetricPerPeriod(group model.InstanceGroup, buckets [][]model.InstanceMetric, periodCount int) ([]float64, error) {
	if !group.Type.IsAvailabilityFamily() && !group.Type.IsStressFamily() && group.Type != model.InstanceTypeNomad {
		return nil, ErrEmptyMetrics
	}
	if periodCount > len(buckets) {
		periodCount = len(buckets)
	}

	out := make([]float64, 0, periodCount)
	for i := 0; i < periodCount; i++ {
		out = append(out, summarizeBucket(group.Type, buckets[i]))
	}
	return out, nil
}

func summarizeBucket(instanceType model.InstanceType, bucket []model.InstanceMetric) float64 {
	sumByInstance := map[string]float64{}
	countByInstance := map[string]int{}

	for _, m := range bucket {
		sumByInstance[m.InstanceID] += m.Value
		countByInstance[m.InstanceID]++
	}

	var total float64
	var instances int
	for id, sum := range sumByInstance {
		mean := sum / float64(countByInstance[id])
		total += mean
		instances++
	}

	if instanceType.IsAvailabilityFamily() {
		return total
	}
	if instances == 0 {
		return 0
	}
	return total / float64(instances)
}
