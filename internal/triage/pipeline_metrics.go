package triage

import "github.com/prometheus/client_golang/prometheus"

// PipelineHooks lets the metrics layer observe pipeline execution without
// the pipeline depending on a registry. Zero value is a no-op.
type PipelineHooks struct {
	OnStage    func(stage string, durationS float64, failed bool)
	OnComplete func(result *Result)
}

func (h PipelineHooks) stage(name string, durationS float64, failed bool) {
	if h.OnStage != nil {
		h.OnStage(name, durationS, failed)
	}
}

func (h PipelineHooks) complete(r *Result) {
	if h.OnComplete != nil {
		h.OnComplete(r)
	}
}

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	StageDuration    *prometheus.HistogramVec
	StageFallbacks   *prometheus.CounterVec
	EscalationsTotal prometheus.Counter
	RedFlagCount     prometheus.Histogram
	Confidence       prometheus.Histogram
	SubmitsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaflow_triage_runs_total",
			Help: "Total pipeline runs by final risk tier.",
		}, []string{"risk_tier"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinicaflow_triage_run_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~260s
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinicaflow_stage_duration_seconds",
			Help:    "Per-stage duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage"}),
		StageFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaflow_stage_fallbacks_total",
			Help: "Stage failures recovered via fallback substitution.",
		}, []string{"stage"}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinicaflow_escalations_total",
			Help: "Runs whose final tier required escalation.",
		}),
		RedFlagCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinicaflow_red_flags_per_run",
			Help:    "Red flags detected per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 10), // 0 .. 9
		}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinicaflow_confidence",
			Help:    "Confidence estimate per run.",
			Buckets: prometheus.LinearBuckets(0.4, 0.05, 13), // 0.40 .. 1.00
		}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaflow_submits_total",
			Help: "Total intake submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.StageFallbacks,
		m.EscalationsTotal,
		m.RedFlagCount,
		m.Confidence,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns PipelineHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() PipelineHooks {
	return PipelineHooks{
		OnStage: func(stage string, durationS float64, failed bool) {
			m.StageDuration.WithLabelValues(stage).Observe(durationS)
			if failed {
				m.StageFallbacks.WithLabelValues(stage).Inc()
			}
		},
		OnComplete: func(r *Result) {
			m.RunsTotal.WithLabelValues(string(r.RiskTier)).Inc()
			m.RunDuration.Observe(r.TotalLatencyMS / 1000.0)
			if r.EscalationRequired {
				m.EscalationsTotal.Inc()
			}
			m.RedFlagCount.Observe(float64(len(r.RedFlags)))
			m.Confidence.Observe(r.Confidence)
		},
	}
}
