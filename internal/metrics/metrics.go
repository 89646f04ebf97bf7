// Package metrics exposes the control loop's vitals to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kilnfire"
)

// Metrics holds the kiln controller gauges and counters.
type Metrics struct {
	TemperatureC prometheus.Gauge
	SetpointC    prometheus.Gauge
	SSRDuty      prometheus.Gauge
	Emergency    prometheus.Gauge
	FiringActive prometheus.Gauge
	SegmentIndex prometheus.Gauge
	TripsTotal   *prometheus.CounterVec
	TickDuration prometheus.Histogram
}

// New registers the metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TemperatureC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_temperature_celsius",
			Help: "Measured kiln temperature in Celsius",
		}),
		SetpointC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_setpoint_celsius",
			Help: "Active control setpoint in Celsius",
		}),
		SSRDuty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_ssr_duty",
			Help: "Requested SSR duty fraction (0..1)",
		}),
		Emergency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_emergency_latched",
			Help: "Emergency latch state (1=latched)",
		}),
		FiringActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_firing_active",
			Help: "Whether a firing or auto-tune is active (1=active)",
		}),
		SegmentIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_firing_segment",
			Help: "Zero-based index of the active profile segment",
		}),
		TripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_safety_trips_total",
			Help: "Safety trips by reason",
		}, []string{"reason"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiln_engine_tick_seconds",
			Help:    "Firing engine tick execution time",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
	reg.MustRegister(
		m.TemperatureC, m.SetpointC, m.SSRDuty, m.Emergency,
		m.FiringActive, m.SegmentIndex, m.TripsTotal, m.TickDuration,
	)
	return m
}

// ObserveTick records one engine pass. Nil receivers are allowed so the
// engine can run without a registry in tests.
func (m *Metrics) ObserveTick(tempC, setpointC, duty float64, active, emergency bool,
	segment int, took time.Duration) {

	if m == nil {
		return
	}
	m.TemperatureC.Set(tempC)
	m.SetpointC.Set(setpointC)
	m.SSRDuty.Set(duty)
	m.SegmentIndex.Set(float64(segment))
	if active {
		m.FiringActive.Set(1)
	} else {
		m.FiringActive.Set(0)
	}
	if emergency {
		m.Emergency.Set(1)
	} else {
		m.Emergency.Set(0)
	}
	m.TickDuration.Observe(took.Seconds())
}

// RecordTrip counts a safety trip.
func (m *Metrics) RecordTrip(reason kilnfire.FiringErrorCode) {
	if m == nil {
		return
	}
	m.TripsTotal.WithLabelValues(string(reason)).Inc()
}
