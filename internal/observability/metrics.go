package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "luna"

type moduleMetrics struct {
	queueSize     *prometheus.GaugeVec
	enqueueTotal  *prometheus.CounterVec
	dequeueTotal  *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec

	activeSessions  prometheus.Gauge
	appendsTotal    *prometheus.CounterVec
	expiredTotal    prometheus.Counter
	sweepsTotal     prometheus.Counter
	clearsTotal     prometheus.Counter
	historyTurns    prometheus.Histogram

	generationAttempts *prometheus.CounterVec
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	repliesTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "queue_size",
					Help:      "Current queued workflow count by lane kind.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "enqueue_total",
					Help:      "Total enqueue operations by lane kind.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "dequeue_total",
					Help:      "Total completed workflows by lane kind and status.",
				},
				[]string{"lane", "status"},
			),
			rejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "queue_rejected_total",
					Help:      "Total submissions rejected by reason (full, closed, duplicate).",
				},
				[]string{"reason"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "task_duration_seconds",
					Help:      "Workflow execution duration in seconds by lane kind.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Conversations currently held in memory.",
				},
			),
			appendsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_appends_total",
					Help:      "Turns appended to conversation history by role.",
				},
				[]string{"role"},
			),
			expiredTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_expired_total",
					Help:      "Conversations removed by the idle sweep.",
				},
			),
			sweepsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_sweeps_total",
					Help:      "Idle sweeps executed.",
				},
			),
			clearsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_clears_total",
					Help:      "Conversations removed by an explicit reset.",
				},
			),
			historyTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "prompt_history_turns",
					Help:      "History turns carried into each generation request.",
					Buckets:   []float64{0, 2, 4, 6, 8, 10, 12, 16, 20, 30, 40},
				},
			),
			generationAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "generation_attempts_total",
					Help:      "Generation attempts by provider and outcome (success, transport, endpoint).",
				},
				[]string{"provider", "outcome"},
			),
			generationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "generation_total",
					Help:      "Generation calls by provider and final status (success, exhausted, unconfigured).",
				},
				[]string{"provider", "status"},
			),
			generationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "generation_duration_seconds",
					Help:      "Generation call duration in seconds including retries and backoff.",
					Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
				},
				[]string{"provider"},
			),
			repliesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "replies_total",
					Help:      "Replies sent by kind (answer, failure, unconfigured, fault, busy, farewell, greet, status, hint).",
				},
				[]string{"kind"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.rejectedTotal,
			m.taskDuration,
			m.activeSessions,
			m.appendsTotal,
			m.expiredTotal,
			m.sweepsTotal,
			m.clearsTotal,
			m.historyTurns,
			m.generationAttempts,
			m.generationTotal,
			m.generationDuration,
			m.repliesTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueRejected(reason string) {
	getMetrics().rejectedTotal.WithLabelValues(reason).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionAppend(role string) {
	getMetrics().appendsTotal.WithLabelValues(role).Inc()
}

func RecordSessionClear() {
	getMetrics().clearsTotal.Inc()
}

func RecordSweep(expired int) {
	m := getMetrics()
	m.sweepsTotal.Inc()
	m.expiredTotal.Add(float64(expired))
}

func RecordPromptHistory(turns int) {
	getMetrics().historyTurns.Observe(float64(turns))
}

// RecordGenerationAttempt counts one provider call. outcome is success, transport or endpoint.
func RecordGenerationAttempt(provider, outcome string) {
	getMetrics().generationAttempts.WithLabelValues(provider, outcome).Inc()
}

func RecordGeneration(provider, status string, duration time.Duration) {
	m := getMetrics()
	m.generationTotal.WithLabelValues(provider, status).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordReply(kind string) {
	getMetrics().repliesTotal.WithLabelValues(kind).Inc()
}
