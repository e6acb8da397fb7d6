package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline exposes counters and durations for lifecycle pipeline runs.
type Pipeline struct {
	runs      *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPipeline registers the pipeline metrics on the given registerer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_orchestrator",
			Name:      "pipeline_runs_total",
			Help:      "Terminal outcomes of lifecycle pipeline invocations.",
		}, []string{"pipeline", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tenant_orchestrator",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall-clock duration of lifecycle pipeline invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"pipeline"}),
	}
	if reg != nil {
		reg.MustRegister(p.runs, p.durations)
	}
	return p
}

// Observe records one finished pipeline invocation.
func (p *Pipeline) Observe(pipeline, status string, d time.Duration) {
	p.runs.WithLabelValues(pipeline, status).Inc()
	p.durations.WithLabelValues(pipeline).Observe(d.Seconds())
}
