package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/pgdiag/internal/domain"
)

// Recorder counts probe outcomes. It owns its registry so tests and
// multiple servers in one process do not collide.
type Recorder struct {
	Registry *prometheus.Registry

	probes   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgdiag_probe_total",
				Help: "Probe steps executed by outcome",
			},
			[]string{"step", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgdiag_probe_duration_seconds",
				Help:    "Probe step duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgdiag_runs_total",
				Help: "Completed diagnostic runs by overall outcome",
			},
			[]string{"outcome"},
		),
	}
	r.Registry.MustRegister(r.probes, r.duration, r.runs)
	return r
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (r *Recorder) ObserveStep(step domain.Step, ok bool, d time.Duration) {
	r.probes.WithLabelValues(string(step), outcome(ok)).Inc()
	r.duration.WithLabelValues(string(step)).Observe(d.Seconds())
}

func (r *Recorder) ObserveRun(rep *domain.DiagnosticReport) {
	r.runs.WithLabelValues(outcome(rep.Succeeded())).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
