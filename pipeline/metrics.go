package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/autopress/llm"
)

// Metrics holds the pipeline's prometheus instruments. The registerer is
// injectable so tests and embedders control the registry.
type Metrics struct {
	runs       *prometheus.CounterVec
	llmCalls   *prometheus.CounterVec
	judgeScore prometheus.Histogram
	coverage   prometheus.Histogram
}

// NewMetrics registers the pipeline metrics on reg. A nil reg uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopress",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopress",
			Name:      "llm_calls_total",
			Help:      "LLM completion calls by capability and outcome.",
		}, []string{"capability", "outcome"}),
		judgeScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autopress",
			Name:      "judge_overall_score",
			Help:      "Final judge overall score per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		coverage: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autopress",
			Name:      "spec_coverage_percent",
			Help:      "Final spec coverage percentage per run.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// Observer returns an llm.Observer feeding the llm call counter.
func (m *Metrics) Observer() llm.Observer {
	if m == nil {
		return nil
	}
	return func(capability llm.Capability, outcome string, _ time.Duration) {
		m.llmCalls.WithLabelValues(string(capability), outcome).Inc()
	}
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeResult(judgeOverall, coveragePercent float64) {
	if m == nil {
		return
	}
	m.judgeScore.Observe(judgeOverall)
	m.coverage.Observe(coveragePercent)
}
