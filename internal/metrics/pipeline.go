package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks analysis pipelines. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	service string

	pipelinesTotal   *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	queueLag         prometheus.Histogram
	dedupHits        *prometheus.CounterVec
}

func NewPipelineMetrics(registerer prometheus.Registerer, service string) *PipelineMetrics {
	pipelinesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total analysis jobs finished by terminal status.",
		},
		[]string{"service", "status"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Orchestrator run duration in seconds by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600, 900},
		},
		[]string{"service", "stage", "outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "in_flight",
			Help:        "Number of pipelines currently running.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "queue_lag_seconds",
			Help:        "Delay between job creation and pipeline start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	dedupHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Job submissions by outcome (created or duplicate).",
		},
		[]string{"service", "outcome"},
	)

	registerer.MustRegister(pipelinesTotal, pipelineDuration, stageDuration, inFlight, queueLag, dedupHits)

	return &PipelineMetrics{
		service:          service,
		pipelinesTotal:   pipelinesTotal,
		pipelineDuration: pipelineDuration,
		stageDuration:    stageDuration,
		inFlight:         inFlight,
		queueLag:         queueLag,
		dedupHits:        dedupHits,
	}
}

func (m *PipelineMetrics) StartPipeline() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// FinishPipeline records an orchestrator run. status is the status it left the job in.
func (m *PipelineMetrics) FinishPipeline(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.pipelineDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// RecordTerminal counts a job reaching complete or error
func (m *PipelineMetrics) RecordTerminal(status string) {
	if m == nil {
		return
	}
	m.pipelinesTotal.WithLabelValues(m.service, status).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.stageDuration.WithLabelValues(m.service, stage, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *PipelineMetrics) RecordSubmission(duplicate bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if duplicate {
		outcome = "duplicate"
	}
	m.dedupHits.WithLabelValues(m.service, outcome).Inc()
}
