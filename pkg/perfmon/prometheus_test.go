package perfmon

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCollector_RegistersAndExportsMetrics(t *testing.T) {
	mon := NewMonitor(8)
	base := time.Now()
	mon.Record(Sample{Elapsed: 10 * time.Millisecond, At: base})
	mon.Record(Sample{Elapsed: 20 * time.Millisecond, Err: true, At: base.Add(time.Second)})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(mon, "")))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				byName[mf.GetName()] = c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				byName[mf.GetName()] = g.GetValue()
			}
		}
	}

	require.Equal(t, 2.0, byName["plantgraph_query_ops_total"])
	require.Equal(t, 1.0, byName["plantgraph_query_failures_total"])
	require.InDelta(t, 0.5, byName["plantgraph_query_error_rate"], 1e-12)
	require.InDelta(t, 0.015, byName["plantgraph_query_avg_elapsed_seconds"], 1e-9)
}
