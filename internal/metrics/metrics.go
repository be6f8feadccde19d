package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for feed fetches and availability
// queries. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	staleDiscards prometheus.Counter
	weekViews     prometheus.Counter
	freeIntervals prometheus.Histogram
}

// New registers all collectors on a fresh registry so multiple instances
// (tests, embedded use) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "freecal",
				Subsystem: "source",
				Name:      "fetch_total",
				Help:      "Feed fetches by feed and outcome.",
			},
			[]string{"feed", "result"},
		),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freecal",
			Subsystem: "query",
			Name:      "stale_discarded_total",
			Help:      "Fetch responses dropped because a newer query superseded them.",
		}),
		weekViews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "freecal",
			Subsystem: "query",
			Name:      "week_views_total",
			Help:      "Week views computed.",
		}),
		freeIntervals: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freecal",
			Subsystem: "query",
			Name:      "free_intervals",
			Help:      "Free intervals found per computed day.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		}),
	}
	reg.MustRegister(m.fetches, m.staleDiscards, m.weekViews, m.freeIntervals)
	return m
}

// ObserveFetch implements ics.FetchObserver.
func (m *Metrics) ObserveFetch(feedID, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(feedID, result).Inc()
}

func (m *Metrics) StaleDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

func (m *Metrics) WeekViewed() {
	if m == nil {
		return
	}
	m.weekViews.Inc()
}

func (m *Metrics) FreeIntervals(n int) {
	if m == nil {
		return
	}
	m.freeIntervals.Observe(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
