package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	return nil
}

func TestWidgetMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWidgetMetrics(reg)

	m.ObserveUpstream("availability", "ok", 0.2)
	m.ObserveUpstream("availability", "ok", 0.1)
	m.ObserveUpstream("submit", "rejected", 0.3)
	m.ObserveEvent("select_slot", "ignored")
	m.ObserveStaleDiscard()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	upstream := gather(t, reg, "detailing_booking_widget_upstream_requests_total")
	require.Len(t, upstream, 2)
	var availabilityOK float64
	for _, metric := range upstream {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "operation" && label.GetValue() == "availability" {
				availabilityOK = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, availabilityOK)

	stale := gather(t, reg, "detailing_booking_widget_stale_availability_discarded_total")
	require.Len(t, stale, 1)
	assert.Equal(t, 1.0, stale[0].GetCounter().GetValue())

	sessions := gather(t, reg, "detailing_booking_widget_active_sessions")
	require.Len(t, sessions, 1)
	assert.Equal(t, 1.0, sessions[0].GetGauge().GetValue())
}

func TestWidgetMetricsNilSafe(t *testing.T) {
	var m *WidgetMetrics
	m.ObserveUpstream("availability", "ok", 0.1)
	m.ObserveEvent("submit", "ok")
	m.ObserveStaleDiscard()
	m.SessionOpened()
	m.SessionClosed()
}
