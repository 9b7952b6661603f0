// Package promexport owns the Prometheus gauges and counters this control
// plane exposes (spec.md §9): one instance-launch/downscale/error counter
// family and a per-group gauge family refreshed by the metrics loop.
package promexport

import "github.com/prometheus/client_golang/prometheus"

// Exporter owns a registry-bound set of metrics. Tests construct their own
// Exporter against a fresh prometheus.NewRegistry() to avoid collisions
// with the process-wide default registry.
type Exporter struct {
	InstancesLaunched   *prometheus.CounterVec
	InstancesDownscaled *prometheus.CounterVec
	InstanceErrors      *prometheus.CounterVec

	GroupsManaged prometheus.Gauge

	DesiredCount         *prometheus.GaugeVec
	MinDesired           *prometheus.GaugeVec
	MaxDesired           *prometheus.GaugeVec
	InstanceCount        *prometheus.GaugeVec
	RunningCount         *prometheus.GaugeVec
	CloudInstanceCount   *prometheus.GaugeVec
	UntrackedCount       *prometheus.GaugeVec

	QueueWaiting *prometheus.GaugeVec
}

// New registers every metric against reg and returns the bound Exporter.
func New(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		InstancesLaunched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaling_instance_launched_total",
			Help: "Total instances successfully launched, by group.",
		}, []string{"group"}),
		InstancesDownscaled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaling_instance_downscaled_total",
			Help: "Total instances marked for scale-down, by group.",
		}, []string{"group"}),
		InstanceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaling_instance_errors_total",
			Help: "Total launcher/autoscaler errors, by group and kind.",
		}, []string{"group", "kind"}),
		GroupsManaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaling_groups_managed",
			Help: "Number of groups currently managed.",
		}),
		DesiredCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_desired_count",
			Help: "Current desiredCount, by group.",
		}, []string{"group"}),
		MinDesired: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_min_desired",
			Help: "Configured minDesired, by group.",
		}, []string{"group"}),
		MaxDesired: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_max_desired",
			Help: "Configured maxDesired, by group.",
		}, []string{"group"}),
		InstanceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_instance_count",
			Help: "Tracked live instance count, by group.",
		}, []string{"group"}),
		RunningCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_running_instance_count",
			Help: "Tracked non-shutting-down, non-provisioning instance count, by group.",
		}, []string{"group"}),
		CloudInstanceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_cloud_instance_count",
			Help: "Instances enumerated directly from the cloud provider, by group.",
		}, []string{"group"}),
		UntrackedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_untracked_instance_count",
			Help: "Instances visible to the cloud provider but absent from tracked inventory, by group.",
		}, []string{"group"}),
		QueueWaiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaling_queue_waiting",
			Help: "Jobs waiting in queue, by queue name.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		e.InstancesLaunched, e.InstancesDownscaled, e.InstanceErrors,
		e.GroupsManaged,
		e.DesiredCount, e.MinDesired, e.MaxDesired,
		e.InstanceCount, e.RunningCount, e.CloudInstanceCount, e.UntrackedCount,
		e.QueueWaiting,
	)
	return e
}

// DeleteGroup removes every per-group label series for name -- called on
// group deletion so a removed group's gauges don't linger forever.
func (e *Exporter) DeleteGroup(name string) {
	e.InstancesLaunched.DeleteLabelValues(name)
	e.InstancesDownscaled.DeleteLabelValues(name)
	e.DesiredCount.DeleteLabelValues(name)
	e.MinDesired.DeleteLabelValues(name)
	e.MaxDesired.DeleteLabelValues(name)
	e.InstanceCount.DeleteLabelValues(name)
	e.RunningCount.DeleteLabelValues(name)
	e.CloudInstanceCount.DeleteLabelValues(name)
	e.UntrackedCount.DeleteLabelValues(name)
	e.InstanceErrors.DeletePartialMatch(prometheus.Labels{"group": name})
}
