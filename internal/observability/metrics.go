package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacoelho/validatecache"
)

// Metrics records run outcomes on a private registry. Cache load and save
// results are counted once per outcome.
type Metrics struct {
	registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	CacheLoads   *prometheus.CounterVec
	CacheSaves   *prometheus.CounterVec
	Diagnostics  *prometheus.CounterVec
	PoolGrammars prometheus.Gauge
	LastRun      prometheus.Gauge
	RunDuration  prometheus.Histogram
}

// NewMetrics registers the validatecache metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "validatecache_runs_total",
			Help: "Documents validated, by result.",
		}, []string{"result"}),
		CacheLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "validatecache_cache_loads_total",
			Help: "Grammar cache loads, by result.",
		}, []string{"result"}),
		CacheSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "validatecache_cache_saves_total",
			Help: "Grammar cache saves, by result.",
		}, []string{"result"}),
		Diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "validatecache_diagnostics_total",
			Help: "Diagnostics reported by the engine, by severity.",
		}, []string{"severity"}),
		PoolGrammars: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validatecache_pool_grammars",
			Help: "Grammars held in the pool at the end of the last run.",
		}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "validatecache_last_run_timestamp_seconds",
			Help: "Start time of the last observed run.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "validatecache_validation_seconds",
			Help:    "Time spent validating one document.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe implements validatecache.Observer.
func (m *Metrics) Observe(o validatecache.Outcome) error {
	m.Runs.WithLabelValues(runResult(o)).Inc()
	m.CacheLoads.WithLabelValues(cacheResult(o.CachePath != "", o.CacheLoadFailed)).Inc()
	m.CacheSaves.WithLabelValues(cacheResult(o.CachePath != "", o.CacheSaveFailed)).Inc()
	m.Diagnostics.WithLabelValues("warning").Add(float64(o.Diagnostics.Warnings))
	m.Diagnostics.WithLabelValues("error").Add(float64(o.Diagnostics.Errors))
	m.Diagnostics.WithLabelValues("fatal_error").Add(float64(o.Diagnostics.FatalErrors))
	m.PoolGrammars.Set(float64(o.Grammars))
	if !o.Started.IsZero() {
		m.LastRun.Set(float64(o.Started.Unix()))
	}
	m.RunDuration.Observe(o.Duration.Seconds())
	return nil
}

// WriteTextfile writes every metric in Prometheus text format to path,
// for collection by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func runResult(o validatecache.Outcome) string {
	switch {
	case o.TransportFailed:
		return "transport_error"
	case o.ValidationPassed:
		return "pass"
	default:
		return "fail"
	}
}

func cacheResult(configured, failed bool) string {
	switch {
	case !configured:
		return "skipped"
	case failed:
		return "failed"
	default:
		return "ok"
	}
}
