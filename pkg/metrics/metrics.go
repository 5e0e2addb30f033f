package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Broker metrics
	MessagesForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzmux_messages_forwarded_total",
			Help: "Total number of frames forwarded by a broker, by tag kind",
		},
		[]string{"tag_kind"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzmux_messages_handled_total",
			Help: "Total number of frames consumed at the broker without being forwarded",
		},
		[]string{"event_kind"},
	)

	AttachedClientsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fuzzmux_attached_clients",
			Help: "Number of clients currently attached to a broker",
		},
	)

	BrokerDispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fuzzmux_broker_dispatch_latency_seconds",
			Help:    "Time spent in the broker's dispatch policy per message",
			Buckets: prometheus.DefBuckets,
		},
	)

	BrokerStallTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzmux_broker_stall_ticks_total",
			Help: "Total number of soft ticks delivered to the broker hook after a stall timeout",
		},
	)

	// Centralized manager / evaluator metrics
	TestcasesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzmux_testcases_received_total",
			Help: "Total number of NewTestcase events processed by the main evaluator",
		},
	)

	TestcasesAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzmux_testcases_accepted_total",
			Help: "Total number of forwarded inputs accepted into the corpus",
		},
	)

	TrustedObserverAcceptanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzmux_trusted_observer_acceptance_total",
			Help: "Total number of testcases accepted via trusted observer snapshot rather than re-execution",
		},
	)

	ReexecutionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzmux_reexecution_total",
			Help: "Total number of testcases evaluated via local re-execution",
		},
	)

	// Adaptive serialization metrics
	AdaptiveSerializationRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fuzzmux_adaptive_serialization_ratio",
			Help: "Fraction of recent NewTestcase events that shipped an observer snapshot",
		},
	)

	SerializationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fuzzmux_serialization_duration_seconds",
			Help:    "Time spent serializing observer snapshots",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Stage restart metrics
	StageRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzmux_stage_retries_total",
			Help: "Total number of stage retry attempts, by stage name",
		},
		[]string{"stage"},
	)

	StageSkippedInputsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzmux_stage_skipped_inputs_total",
			Help: "Total number of corpus entries a stage gave up retrying, by stage name",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(MessagesForwardedTotal)
	prometheus.MustRegister(MessagesHandledTotal)
	prometheus.MustRegister(AttachedClientsTotal)
	prometheus.MustRegister(BrokerDispatchLatency)
	prometheus.MustRegister(BrokerStallTicksTotal)

	prometheus.MustRegister(TestcasesReceivedTotal)
	prometheus.MustRegister(TestcasesAcceptedTotal)
	prometheus.MustRegister(TrustedObserverAcceptanceTotal)
	prometheus.MustRegister(ReexecutionTotal)

	prometheus.MustRegister(AdaptiveSerializationRatio)
	prometheus.MustRegister(SerializationDuration)

	prometheus.MustRegister(StageRetriesTotal)
	prometheus.MustRegister(StageSkippedInputsTotal)
}

// Handler returns the Prometheus HTTP handler, served at /metrics by each
// process role's cmd entry point.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
