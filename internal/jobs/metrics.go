// Package jobmetrics instruments the background ledger jobs.
package jobmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// Metrics holds the worker collectors. A nil *Metrics is a no-op.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	imbalances  *prometheus.CounterVec
}

// NewMetrics builds the job collectors and registers them when registerer is
// non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallybooks",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job runs by task type and outcome.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tallybooks",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall time of job runs.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tallybooks",
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"job"}),
		imbalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tallybooks",
			Subsystem: "ledger",
			Name:      "imbalances_total",
			Help:      "Integrity checks where trial balance debits and credits disagreed.",
		}, []string{"company"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.imbalances)
	}
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	status := statusOK
	if err != nil {
		status = statusFailed
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err == nil {
		t.metrics.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

// AddImbalance counts an unbalanced trial balance for companyID.
func (m *Metrics) AddImbalance(companyID int64) {
	if m == nil {
		return
	}
	m.imbalances.WithLabelValues(strconv.FormatInt(companyID, 10)).Inc()
}
