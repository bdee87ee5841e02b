package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution sources reported in metrics.
const (
	SourceCache     = "cache"
	SourcePrimary   = "primary"
	SourceScrape    = "scrape"
	SourceOEmbed    = "oembed"
	SourceFile      = "file"
	SourcePage      = "page"
	SourceManual    = "manual"
	SourceSynthetic = "synthetic"
	SourceNone      = "none"
)

// Metrics holds the resolver's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	ResolutionsTotal *prometheus.CounterVec
	StepFailures     *prometheus.CounterVec
	ShortLinksTotal  *prometheus.CounterVec
	ResolveDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossfade_resolutions_total",
				Help: "Total number of link resolutions by outcome and source",
			},
			[]string{"outcome", "source"},
		),
		StepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossfade_resolution_step_failures_total",
				Help: "Total number of failed resolution steps",
			},
			[]string{"step"},
		),
		ShortLinksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossfade_short_links_total",
				Help: "Total number of short link expansions",
			},
			[]string{"status"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossfade_resolve_duration_seconds",
				Help:    "Time spent resolving links",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		m.ResolutionsTotal,
		m.StepFailures,
		m.ShortLinksTotal,
		m.ResolveDuration,
	)
	return m
}

func (m *Metrics) recordOutcome(out Outcome, source string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(out.Kind.String(), source).Inc()
}

func (m *Metrics) recordStepFailure(step string) {
	if m == nil {
		return
	}
	m.StepFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) recordShortLink(status string) {
	if m == nil {
		return
	}
	m.ShortLinksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
