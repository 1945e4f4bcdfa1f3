package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler job outcomes.
const (
	JobOK       = "ok"
	JobFailed   = "failed"
	JobPanicked = "panicked"
	JobTimedOut = "timed_out"
)

// SchedulerMetrics records cron cycles and per-job outcomes.
type SchedulerMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Wall time of scheduled job runs.",
		Buckets:   []float64{.05, .25, 1, 5, 15, 60, 300},
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per job.",
	}, []string{"job"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cycles_skipped_total",
		Help:      "Cycles skipped because another instance held the lock.",
	})
	reg.MustRegister(runs, duration, lastSuccess, skipped)
	return &SchedulerMetrics{
		runs:        runs,
		duration:    duration,
		lastSuccess: lastSuccess,
		skipped:     skipped,
	}
}

// ObserveRun records one job execution. finished stamps the success gauge
// when outcome is JobOK.
func (m *SchedulerMetrics) ObserveRun(job, outcome string, took time.Duration, finished time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, outcome).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if outcome == JobOK {
		m.lastSuccess.WithLabelValues(job).Set(float64(finished.Unix()))
	}
}

func (m *SchedulerMetrics) IncSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}
