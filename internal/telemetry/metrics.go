package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape engine.
type Metrics struct {
	Registry       *prometheus.Registry
	EventsScraped  prometheus.Counter
	ScrollCycles   prometheus.Counter
	CacheLookups   *prometheus.CounterVec
	JoinAttempts   prometheus.Counter
	FanOutFailures *prometheus.CounterVec
	APIRequests    *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	events := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailru_scraper_events_total",
		Help: "Total number of feed entries normalized by the scrape engine.",
	})
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailru_scraper_scroll_cycles_total",
		Help: "Total number of load-more cycles triggered on a feed or list.",
	})
	cache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailru_scraper_cache_lookups_total",
			Help: "Scrape cache lookups by result.",
		},
		[]string{"result"},
	)
	joins := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailru_scraper_join_attempts_total",
		Help: "Total number of join clicks performed.",
	})
	fanout := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailru_scraper_fanout_failures_total",
			Help: "Per-item fan-out failures by outcome.",
		},
		[]string{"outcome"},
	)
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailru_api_requests_total",
			Help: "REST requests issued by the session by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(events, cycles, cache, joins, fanout, requests)

	return &Metrics{
		Registry:       registry,
		EventsScraped:  events,
		ScrollCycles:   cycles,
		CacheLookups:   cache,
		JoinAttempts:   joins,
		FanOutFailures: fanout,
		APIRequests:    requests,
	}
}

func (m *Metrics) IncEvents() {
	if m == nil {
		return
	}
	m.EventsScraped.Inc()
}

func (m *Metrics) IncScrollCycles() {
	if m == nil {
		return
	}
	m.ScrollCycles.Inc()
}

// IncCache records a cache lookup, result is "hit" or "miss".
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncJoinAttempts() {
	if m == nil {
		return
	}
	m.JoinAttempts.Inc()
}

// IncFanOutFailure records a failed fan-out item, outcome is "ignored" or "fatal".
func (m *Metrics) IncFanOutFailure(outcome string) {
	if m == nil {
		return
	}
	m.FanOutFailures.WithLabelValues(outcome).Inc()
}

// IncAPIRequest records a REST request, outcome is "ok", "api_error" or "transport_error".
func (m *Metrics) IncAPIRequest(outcome string) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(outcome).Inc()
}
