// Package metrics exposes Prometheus counters for scrape runs and area backfills.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"housing-scraper/models"
)

const (
	// Namespace is the namespace for all pipeline metrics.
	Namespace = "housing"

	// Subsystem is the subsystem for pipeline metrics.
	Subsystem = "pipeline"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	PagesTotal         *prometheus.CounterVec
	CardsTotal         *prometheus.CounterVec
	GeocodeTotal       *prometheus.CounterVec
	ListingsWritten    *prometheus.CounterVec
	BackfillTotal      *prometheus.CounterVec
	LastRunTimestamp   prometheus.Gauge
}

// New creates and registers all pipeline metrics. A nil registerer uses the
// default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "runs_total",
		Help: "Scrape runs by outcome",
	}, []string{"outcome"})

	m.RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name:    "run_duration_seconds",
		Help:    "Wall time of a scrape run",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400},
	})

	m.PagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "pages_total",
		Help: "Listing pages visited by status",
	}, []string{"status"})

	m.CardsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "cards_total",
		Help: "Listing cards by outcome; skipped cards carry the missing field as reason",
	}, []string{"outcome", "reason"})

	m.GeocodeTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "geocode_total",
		Help: "Forward geocode lookups by status",
	}, []string{"status"})

	m.ListingsWritten = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "listings_written_total",
		Help: "Listing replacements by status",
	}, []string{"status"})

	m.BackfillTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "area_backfill_total",
		Help: "Area backfill updates by status",
	}, []string{"status"})

	m.LastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "last_run_timestamp_seconds",
		Help: "Unix time the last scrape run finished",
	})

	return m
}

// ObserveRun records the counters of a finished run.
func (m *Metrics) ObserveRun(stats *models.RunStats, runErr error) {
	if m == nil || stats == nil {
		return
	}

	outcome := "success"
	if runErr != nil {
		outcome = "error"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDurationSeconds.Observe(stats.Duration().Seconds())
	m.LastRunTimestamp.Set(float64(stats.FinishedAt.Unix()))

	m.PagesTotal.WithLabelValues("ok").Add(float64(stats.Pages - stats.PagesFailed))
	m.PagesTotal.WithLabelValues("failed").Add(float64(stats.PagesFailed))

	m.CardsTotal.WithLabelValues("parsed", "").Add(float64(stats.Parsed))
	m.CardsTotal.WithLabelValues("duplicate", "").Add(float64(stats.Duplicates))
	for reason, n := range stats.Skipped {
		m.CardsTotal.WithLabelValues("skipped", reason).Add(float64(n))
	}

	m.GeocodeTotal.WithLabelValues("miss").Add(float64(stats.GeocodeMisses))
	m.GeocodeTotal.WithLabelValues("hit").Add(float64(stats.Parsed - stats.GeocodeMisses))

	m.ListingsWritten.WithLabelValues("ok").Add(float64(stats.Written))
	m.ListingsWritten.WithLabelValues("failed").Add(float64(stats.WriteFailures))
}

// ObserveBackfill records one backfill update.
func (m *Metrics) ObserveBackfill(status string) {
	if m == nil {
		return
	}
	m.BackfillTotal.WithLabelValues(status).Inc()
}
