// Package metrics holds the Prometheus collectors for the memory engine and
// a lock-free snapshot view for the status endpoint.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture outcome label values.
const (
	OutcomeInserted   = "inserted"
	OutcomeSuperseded = "superseded"
	OutcomeRejected   = "rejected"
	OutcomeDropped    = "dropped"
	OutcomeFailed     = "failed"
)

// Sweep mode label values.
const (
	SweepExpired = "expired"
	SweepPurged  = "purged"
)

// Metrics tracks engine-level counters. Prometheus collectors back the
// /metrics endpoint; a parallel set of atomics feeds Snapshot so the status
// endpoint never has to gather and parse the registry.
type Metrics struct {
	registry *prometheus.Registry

	captureEvents  *prometheus.CounterVec
	captureRetries prometheus.Counter
	queueDepth     prometheus.Gauge
	recallRequests prometheus.Counter
	recallTimeouts prometheus.Counter
	recallDuration prometheus.Histogram
	recordsSwept   *prometheus.CounterVec
	redactions     *prometheus.CounterVec

	captured     atomic.Int64
	superseded   atomic.Int64
	rejected     atomic.Int64
	dropped      atomic.Int64
	failed       atomic.Int64
	retries      atomic.Int64
	recalls      atomic.Int64
	timeouts     atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
	swept        atomic.Int64
	purged       atomic.Int64
	depth        atomic.Int64
}

// New builds the collector set on a fresh registry that also carries the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		captureEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mnemod_capture_events_total",
			Help: "Capture pipeline outcomes by terminal state.",
		}, []string{"outcome"}),
		captureRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "mnemod_capture_retries_total",
			Help: "Store write attempts retried after a transient failure.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "mnemod_capture_queue_depth",
			Help: "Observations waiting in the capture inbox.",
		}),
		recallRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "mnemod_recall_requests_total",
			Help: "Recall queries served, including timed-out ones.",
		}),
		recallTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "mnemod_recall_timeouts_total",
			Help: "Recall queries that hit their deadline before the store answered.",
		}),
		recallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mnemod_recall_duration_seconds",
			Help:    "Recall latency from request to response.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .2, .35, .5},
		}),
		recordsSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mnemod_records_swept_total",
			Help: "Records soft-deleted by TTL sweep or purged after the grace period.",
		}, []string{"mode"}),
		redactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mnemod_redactions_total",
			Help: "Distinct sensitive values redacted from captured content.",
		}, []string{"kind"}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCaptureOutcome records one observation reaching a terminal state.
func (m *Metrics) RecordCaptureOutcome(outcome string) {
	m.captureEvents.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeInserted:
		m.captured.Add(1)
	case OutcomeSuperseded:
		m.superseded.Add(1)
	case OutcomeRejected:
		m.rejected.Add(1)
	case OutcomeDropped:
		m.dropped.Add(1)
	case OutcomeFailed:
		m.failed.Add(1)
	}
}

// RecordCaptureRetry records one retried store write.
func (m *Metrics) RecordCaptureRetry() {
	m.captureRetries.Inc()
	m.retries.Add(1)
}

// SetQueueDepth records the current capture inbox depth.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
	m.depth.Store(int64(n))
}

// ObserveRecall records one recall query and its latency.
func (m *Metrics) ObserveRecall(d time.Duration, timedOut bool) {
	m.recallRequests.Inc()
	m.recallDuration.Observe(d.Seconds())
	m.recalls.Add(1)
	m.totalLatency.Add(int64(d))
	if timedOut {
		m.recallTimeouts.Inc()
		m.timeouts.Add(1)
	}
}

// RecordSwept records records removed by the retention job.
func (m *Metrics) RecordSwept(mode string, n int64) {
	if n <= 0 {
		return
	}
	m.recordsSwept.WithLabelValues(mode).Add(float64(n))
	switch mode {
	case SweepExpired:
		m.swept.Add(n)
	case SweepPurged:
		m.purged.Add(n)
	}
}

// RecordRedactions records distinct redacted values per detector kind.
func (m *Metrics) RecordRedactions(counts map[string]int) {
	for kind, n := range counts {
		if n > 0 {
			m.redactions.WithLabelValues(kind).Add(float64(n))
		}
	}
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	recalls := m.recalls.Load()
	snap := Snapshot{
		Captured:       m.captured.Load(),
		Superseded:     m.superseded.Load(),
		Rejected:       m.rejected.Load(),
		Dropped:        m.dropped.Load(),
		Failed:         m.failed.Load(),
		Retries:        m.retries.Load(),
		Recalls:        recalls,
		RecallTimeouts: m.timeouts.Load(),
		Swept:          m.swept.Load(),
		Purged:         m.purged.Load(),
		QueueDepth:     m.depth.Load(),
	}
	if recalls > 0 {
		snap.AvgRecallLatency = time.Duration(m.totalLatency.Load() / recalls)
	}
	return snap
}

// Snapshot is a serializable point-in-time metrics view.
type Snapshot struct {
	Captured         int64         `json:"captured"`
	Superseded       int64         `json:"superseded"`
	Rejected         int64         `json:"rejected"`
	Dropped          int64         `json:"dropped"`
	Failed           int64         `json:"failed"`
	Retries          int64         `json:"retries"`
	Recalls          int64         `json:"recalls"`
	RecallTimeouts   int64         `json:"recall_timeouts"`
	Swept            int64         `json:"swept"`
	Purged           int64         `json:"purged"`
	QueueDepth       int64         `json:"queue_depth"`
	AvgRecallLatency time.Duration `json:"avg_recall_latency_ns"`
}
