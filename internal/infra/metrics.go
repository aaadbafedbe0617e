package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records tool calls and run outcomes for the /metrics endpoint
type Metrics struct {
	toolCalls *prometheus.CounterVec
	runs      *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewMetrics registers the instruments against reg, or the default registerer when nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "investly",
				Subsystem: "assistant",
				Name:      "tool_calls_total",
				Help:      "Tool calls dispatched, by tool and result.",
			},
			[]string{"tool", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "investly",
				Subsystem: "assistant",
				Name:      "runs_total",
				Help:      "Conversation turns processed, by outcome.",
			},
			[]string{"outcome"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "investly",
				Subsystem: "assistant",
				Name:      "process_seconds",
				Help:      "Latency of a full conversation turn.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
			},
		),
	}
	reg.MustRegister(m.toolCalls, m.runs, m.latency)
	return m
}

// ToolCall counts one dispatched tool call
func (m *Metrics) ToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
}

// RunFinished counts a finished turn and observes its latency
func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if elapsed >= 0 {
		m.latency.Observe(elapsed.Seconds())
	}
}
