// Package metrics exposes Prometheus collectors for the converter.
// Collectors live on a per-instance registry so tests can build isolated sets.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission results.
const (
	SubmitAdmitted = "admitted"
	SubmitQueued   = "queued"
	SubmitCached   = "cached"
	SubmitRejected = "rejected"
)

// Metrics groups every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	submissions  *prometheus.CounterVec
	finished     *prometheus.CounterVec
	duration     prometheus.Histogram
	active       prometheus.Gauge
	waiting      prometheus.Gauge
	cacheLookups *prometheus.CounterVec
	cacheEvicted prometheus.Counter
	tempSwept    prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ytconv_submissions_total",
			Help: "Conversion submissions by admission result",
		}, []string{"result"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ytconv_jobs_finished_total",
			Help: "Admitted jobs that reached a terminal status",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ytconv_job_duration_seconds",
			Help:    "Wall time of admitted jobs from start to terminal status",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ytconv_queue_active",
			Help: "Jobs currently holding a concurrency slot",
		}),
		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ytconv_queue_waiting",
			Help: "Jobs waiting for a concurrency slot",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ytconv_cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		cacheEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ytconv_cache_evictions_total",
			Help: "Cache entries removed for exceeding the TTL",
		}),
		tempSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "ytconv_temp_files_swept_total",
			Help: "Orphaned work area files deleted by the cleanup sweep",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Submitted counts one submission.
func (m *Metrics) Submitted(result string) {
	m.submissions.WithLabelValues(result).Inc()
}

// JobFinished records a job reaching a terminal status.
func (m *Metrics) JobFinished(status string, seconds float64) {
	m.finished.WithLabelValues(status).Inc()
	m.duration.Observe(seconds)
}

// QueueChanged implements queue.Observer.
func (m *Metrics) QueueChanged(active, waiting int) {
	m.active.Set(float64(active))
	m.waiting.Set(float64(waiting))
}

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheEvicted implements cache.Observer.
func (m *Metrics) CacheEvicted(count int) {
	m.cacheEvicted.Add(float64(count))
}

// TempSwept counts deleted work area files.
func (m *Metrics) TempSwept(count int) {
	m.tempSwept.Add(float64(count))
}
