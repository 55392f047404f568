// Package metrics exposes the engine's Prometheus collectors on an internal
// HTTP endpoint. The registry shape (a struct of collectors, constructed
// once, registered with prometheus.MustRegister, and served by
// promhttp.Handler) is grounded on the teacher's
// internal/interfaces/http/metrics.go MetricsRegistry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Prometheus collector ShortSentinel exposes.
type Registry struct {
	QueueDepth      prometheus.Gauge
	QueueDropped    prometheus.Counter
	SignalsEmitted  *prometheus.CounterVec
	EntriesToday    prometheus.Gauge
	PositionsOpen   prometheus.Gauge
	JournalWriteDur *prometheus.HistogramVec
	VenueStale      *prometheus.GaugeVec
	BTCAlignment    prometheus.Gauge
}

// New constructs and registers a Registry. Call once per process.
func New() *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortsentinel_hub_queue_depth",
			Help: "Current depth of the hub's bounded unified-tick output queue.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsentinel_hub_queue_dropped_total",
			Help: "Total events dropped from the intake queue due to overflow.",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsentinel_signals_emitted_total",
			Help: "Total entry/exit signals emitted, by signal type.",
		}, []string{"type"}),
		EntriesToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortsentinel_entries_today",
			Help: "Entry signals emitted since the daily counter last reset.",
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortsentinel_positions_open",
			Help: "Number of short positions currently open.",
		}),
		JournalWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortsentinel_journal_write_seconds",
			Help:    "Duration of journal write operations, by table.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"table"}),
		VenueStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shortsentinel_venue_stale",
			Help: "1 if a venue's feed is currently flagged stale, else 0.",
		}, []string{"venue"}),
		BTCAlignment: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortsentinel_btc_alignment",
			Help: "Most recent BTC regime alignment score fed into scoring.",
		}),
	}

	prometheus.MustRegister(
		r.QueueDepth,
		r.QueueDropped,
		r.SignalsEmitted,
		r.EntriesToday,
		r.PositionsOpen,
		r.JournalWriteDur,
		r.VenueStale,
		r.BTCAlignment,
	)

	return r
}

// Handler returns the HTTP handler serving the registered collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// StartJournalWrite begins timing a write to the given table; call Stop on
// the returned timer (e.g. via defer) to record the observation.
func (r *Registry) StartJournalWrite(table string) *prometheus.Timer {
	return prometheus.NewTimer(r.JournalWriteDur.WithLabelValues(table))
}

// RecordSignal increments the emitted-signal counter for the given type
// ("entry" or "exit").
func (r *Registry) RecordSignal(signalType string) {
	r.SignalsEmitted.WithLabelValues(signalType).Inc()
}

// SetVenueStale records whether venue's feed is currently stale.
func (r *Registry) SetVenueStale(venue string, stale bool) {
	v := 0.0
	if stale {
		v = 1.0
	}
	r.VenueStale.WithLabelValues(venue).Set(v)
}
