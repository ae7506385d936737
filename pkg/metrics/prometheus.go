package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	tiersClosed     *prometheus.CounterVec
	candles         *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	signalsResolved *prometheus.CounterVec
	consolidations  prometheus.Counter
	patternsUpdated prometheus.Counter
	recordsPruned   prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production and a
// fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		tiersClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcascade_tiers_closed_total",
			Help: "Parent tier records closed by the cascade",
		}, []string{"tier"}),
		candles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcascade_candles_ingested_total",
			Help: "Closed one-minute candles ingested",
		}, []string{"defaulted"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcascade_outcomes_recorded_total",
			Help: "Outcomes folded into pattern memory",
		}, []string{"accurate"}),
		signalsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcascade_signals_resolved_total",
			Help: "Signals resolved by the validator",
		}, []string{"profile", "result"}),
		consolidations: f.NewCounter(prometheus.CounterOpts{
			Name: "trendcascade_consolidations_total",
			Help: "Completed consolidation runs",
		}),
		patternsUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "trendcascade_patterns_consolidated_total",
			Help: "Pattern memories rewritten by consolidation",
		}),
		recordsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "trendcascade_records_pruned_total",
			Help: "M1 records deleted by retention",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcascade_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendcascade_operation_duration_seconds",
			Help:    "Duration of core operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) TierClosed(tier string) {
	r.tiersClosed.WithLabelValues(tier).Inc()
}

func (r *Recorder) CandleIngested(defaulted bool) {
	r.candles.WithLabelValues(strconv.FormatBool(defaulted)).Inc()
}

func (r *Recorder) OutcomeRecorded(accurate bool) {
	r.outcomes.WithLabelValues(strconv.FormatBool(accurate)).Inc()
}

func (r *Recorder) SignalResolved(profile, result string) {
	r.signalsResolved.WithLabelValues(profile, result).Inc()
}

func (r *Recorder) ConsolidationDone(updated int, pruned int64) {
	r.consolidations.Inc()
	r.patternsUpdated.Add(float64(updated))
	r.recordsPruned.Add(float64(pruned))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}
