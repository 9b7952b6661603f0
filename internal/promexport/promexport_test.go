package promexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestDesiredCountGaugeTracksSetValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(reg)

	e.DesiredCount.WithLabelValues("recorders").Set(3)

	var m dto.Metric
	require.NoError(t, e.DesiredCount.WithLabelValues("recorders").Write(&m))
	require.Equal(t, float64(3), m.GetGauge().GetValue())
}

func TestDeleteGroupRemovesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(reg)

	e.DesiredCount.WithLabelValues("recorders").Set(3)
	e.DeleteGroup("recorders")

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "autoscaling_desired_count" {
			continue
		}
		require.Empty(t, fam.GetMetric())
	}
}
