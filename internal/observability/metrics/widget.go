package metrics

import "github.com/prometheus/client_golang/prometheus"

// WidgetMetrics exposes counters/histograms for booking widget flows.
type WidgetMetrics struct {
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	staleDiscarded  prometheus.Counter
	activeSessions  prometheus.Gauge
}

func NewWidgetMetrics(reg prometheus.Registerer) *WidgetMetrics {
	m := &WidgetMetrics{
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailing",
			Subsystem: "booking_widget",
			Name:      "upstream_requests_total",
			Help:      "Total availability and booking API calls",
		}, []string{"operation", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "detailing",
			Subsystem: "booking_widget",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of availability and booking API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailing",
			Subsystem: "booking_widget",
			Name:      "events_total",
			Help:      "Widget events processed by the controller",
		}, []string{"event", "result"}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "detailing",
			Subsystem: "booking_widget",
			Name:      "stale_availability_discarded_total",
			Help:      "Availability responses dropped because a newer load was issued",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "detailing",
			Subsystem: "booking_widget",
			Name:      "active_sessions",
			Help:      "Widget sessions with a live controller",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.upstreamTotal, m.upstreamLatency, m.eventsTotal, m.staleDiscarded, m.activeSessions)
	return m
}

// ObserveUpstream records one call to the availability or booking API.
func (m *WidgetMetrics) ObserveUpstream(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(operation, outcome).Inc()
	m.upstreamLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *WidgetMetrics) ObserveEvent(event, result string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event, result).Inc()
}

func (m *WidgetMetrics) ObserveStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}

func (m *WidgetMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *WidgetMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
