package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcribe_requests_total",
			Help: "Transcription requests by ingress source and outcome",
		},
		[]string{"source", "outcome"},
	)

	RequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcribe_request_duration_seconds",
			Help:    "Wall time of a transcription request, queueing included",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 13),
		},
	)

	StageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcribe_stage_outcomes_total",
			Help: "Pipeline stage results by stage and status",
		},
		[]string{"stage", "status"},
	)

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcribe_model_loads_total",
			Help: "Model load attempts by model kind and result",
		},
		[]string{"kind", "result"},
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcribe_model_load_duration_seconds",
			Help:    "Time spent loading a model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcribe_requests_in_flight",
			Help: "Requests currently held by a pipeline worker",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StageOutcomes,
		ModelLoads,
		ModelLoadDuration,
		InFlight,
	)
}

// ObserveModelLoad records one load attempt
func ObserveModelLoad(kind string, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ModelLoads.WithLabelValues(kind, result).Inc()
	ModelLoadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveStage records how a pipeline stage ended
func ObserveStage(stage, status string) {
	StageOutcomes.WithLabelValues(stage, status).Inc()
}

// ObserveRequest records a finished request
func ObserveRequest(source string, success bool, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	RequestsTotal.WithLabelValues(source, outcome).Inc()
	RequestDuration.Observe(elapsed.Seconds())
}
