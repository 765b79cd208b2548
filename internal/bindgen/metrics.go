package bindgen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of one boundary.
type Metrics struct {
	// Guest metrics
	GuestCalls    *prometheus.CounterVec
	GuestDuration *prometheus.HistogramVec
	GuestErrors   *prometheus.CounterVec

	// Import metrics
	ImportExceptions *prometheus.CounterVec

	// Closure metrics
	ClosuresCreated   prometheus.Counter
	ClosuresDestroyed prometheus.Counter
	ClosuresLive      prometheus.Gauge

	// Handle metrics
	HandlesLive prometheus.GaugeFunc
}

// NewMetrics registers the boundary metrics on reg, labelled with the
// boundary id so several boundaries can share a registry.
func NewMetrics(reg prometheus.Registerer, boundaryID string, liveHandles func() float64) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"boundary": boundaryID}

	return &Metrics{
		GuestCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bindgen_guest_calls_total",
				Help:        "Total number of calls into guest exports",
				ConstLabels: labels,
			},
			[]string{"export"},
		),
		GuestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "bindgen_guest_call_duration_seconds",
				Help:        "Guest call duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"export"},
		),
		GuestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bindgen_guest_errors_total",
				Help:        "Total number of guest calls that trapped or were aborted",
				ConstLabels: labels,
			},
			[]string{"export"},
		),
		ImportExceptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bindgen_import_exceptions_total",
				Help:        "Total number of host exceptions captured by catching imports",
				ConstLabels: labels,
			},
			[]string{"import"},
		),
		ClosuresCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "bindgen_closures_created_total",
				Help:        "Total number of guest closures wrapped by the host",
				ConstLabels: labels,
			},
		),
		ClosuresDestroyed: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "bindgen_closures_destroyed_total",
				Help:        "Total number of guest closure destructors run by the host",
				ConstLabels: labels,
			},
		),
		ClosuresLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "bindgen_closures_live",
				Help:        "Number of guest closures with a non-zero reference count",
				ConstLabels: labels,
			},
		),
		HandlesLive: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "bindgen_handles_live",
				Help:        "Number of live handles in the handle table",
				ConstLabels: labels,
			},
			liveHandles,
		),
	}
}
