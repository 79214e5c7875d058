/**
 * @description
 * Prometheus recorder for the ingestion pipeline, the notifier and the reconciler.
 *
 * @dependencies
 * - github.com/prometheus/client_golang: collectors and registry
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder holds every collector the service exports.
type Recorder struct {
	signalsIngested    *prometheus.CounterVec
	ingestDuration     *prometheus.HistogramVec
	persistRetries     prometheus.Counter
	symbolsDiscovered  prometheus.Counter
	subscribers        *prometheus.GaugeVec
	notificationsSent  *prometheus.CounterVec
	droppedSubscribers prometheus.Counter
	publishFailures    prometheus.Counter
	reconcileRuns      *prometheus.CounterVec
	symbolsDeactivated prometheus.Counter
	lastScore          *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		signalsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhino_signals_ingested_total",
				Help: "Webhook signals by outcome",
			},
			[]string{"outcome"},
		),
		ingestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rhino_ingest_duration_seconds",
				Help:    "Duration of ingestion stages in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		persistRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "rhino_persist_retries_total",
			Help: "Ingest transactions retried after a serialization failure or deadlock",
		}),
		symbolsDiscovered: f.NewCounter(prometheus.CounterOpts{
			Name: "rhino_symbols_discovered_total",
			Help: "Symbols created on first sighting",
		}),
		subscribers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rhino_notifier_subscribers",
				Help: "Connected realtime subscribers",
			},
			[]string{"transport"},
		),
		notificationsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhino_notifier_messages_total",
				Help: "Signal updates delivered to subscriber buffers",
			},
			[]string{"source"},
		),
		droppedSubscribers: f.NewCounter(prometheus.CounterOpts{
			Name: "rhino_notifier_dropped_subscribers_total",
			Help: "Subscribers removed because their buffer was full",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rhino_notifier_publish_failures_total",
			Help: "Redis publishes that failed and fell back to local delivery",
		}),
		reconcileRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhino_reconcile_operations_total",
				Help: "Reconciler sub-operations by name and result",
			},
			[]string{"operation", "result"},
		),
		symbolsDeactivated: f.NewCounter(prometheus.CounterOpts{
			Name: "rhino_symbols_deactivated_total",
			Help: "Symbols marked inactive by the staleness sweep",
		}),
		lastScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rhino_last_trend_score",
				Help: "Last accepted trend score per symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordIngest counts one webhook outcome.
func (r *Recorder) RecordIngest(outcome string) {
	if r == nil {
		return
	}
	r.signalsIngested.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long an ingestion stage took.
func (r *Recorder) ObserveStage(stage string, since time.Time) {
	if r == nil {
		return
	}
	r.ingestDuration.WithLabelValues(stage).Observe(time.Since(since).Seconds())
}

func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.persistRetries.Inc()
}

func (r *Recorder) RecordSymbolDiscovered() {
	if r == nil {
		return
	}
	r.symbolsDiscovered.Inc()
}

// RecordLastScore keeps the latest score for a symbol.
func (r *Recorder) RecordLastScore(symbol string, score int) {
	if r == nil {
		return
	}
	r.lastScore.WithLabelValues(symbol).Set(float64(score))
}

// AddSubscriber moves the subscriber gauge for a transport by delta.
func (r *Recorder) AddSubscriber(transport string, delta float64) {
	if r == nil {
		return
	}
	r.subscribers.WithLabelValues(transport).Add(delta)
}

func (r *Recorder) RecordDelivered(source string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.notificationsSent.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordDroppedSubscriber() {
	if r == nil {
		return
	}
	r.droppedSubscribers.Inc()
}

func (r *Recorder) RecordPublishFailure() {
	if r == nil {
		return
	}
	r.publishFailures.Inc()
}

// RecordReconcile counts a reconciler sub-operation.
func (r *Recorder) RecordReconcile(operation string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.reconcileRuns.WithLabelValues(operation, result).Inc()
}

func (r *Recorder) RecordDeactivated(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.symbolsDeactivated.Add(float64(n))
}
