// Package metrics holds the Prometheus counters exported by sync runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "castsync"

// Recorder owns the counters and the registry they are exported from.
type Recorder struct {
	registry *prometheus.Registry

	Attempts      *prometheus.CounterVec
	Successes     *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	AIFailures    *prometheus.CounterVec
	AIRateLimited *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	FeedFiltered  *prometheus.CounterVec
}

// New registers every counter on a fresh registry. withRuntime adds the Go
// and process collectors, which the daemon exports and tests leave out.
func New(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, append([]string{"source"}, labels...))
		reg.MustRegister(vec)
		return vec
	}
	r := &Recorder{
		registry:      reg,
		Attempts:      counter("sync_attempts_total", "Items that passed the quota gate and entered the pipeline."),
		Successes:     counter("sync_success_total", "Items whose terminal record was written."),
		Skipped:       counter("sync_skipped_total", "Items skipped or deferred, by reason.", "reason"),
		Failures:      counter("sync_failure_total", "Items that failed and will be retried."),
		AIFailures:    counter("ai_failure_total", "Metadata generation failures."),
		AIRateLimited: counter("ai_rate_limited_total", "Metadata provider rate limit responses."),
		Runs:          counter("sync_runs_total", "Source passes, by kind.", "kind"),
		FeedFiltered:  counter("feed_filtered_items_total", "Records excluded from a published feed."),
	}
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry exposes the registry for scraping and tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
