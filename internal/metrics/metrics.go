// Package metrics collects Prometheus metrics for the mission
// lifecycle, tool executions, and LLM requests, in the same
// promauto-registered, labeled-vector shape as the teacher's
// internal/observability package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector agentcore exposes at /metrics.
type Metrics struct {
	// MissionsStarted counts Conductor runs started.
	MissionsStarted prometheus.Counter

	// MissionsCompleted counts Conductor runs by outcome
	// (success|failure|cancelled).
	MissionsCompleted *prometheus.CounterVec

	// TaskAttempts counts individual task executions by outcome
	// (success|failure).
	TaskAttempts *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency in seconds.
	// Labels: tool_name, status (success|error)
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequestDuration measures an LLM Streamer round trip in seconds.
	// Labels: role (planner|coder|chat)
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM Streamer calls by role and status.
	LLMRequestCounter *prometheus.CounterVec

	// ActiveMissions tracks in-flight Conductor runs.
	ActiveMissions prometheus.Gauge

	// BroadcastSessions tracks open Broadcast Hub sockets.
	BroadcastSessions prometheus.Gauge
}

// New creates and registers every collector. Call once at process
// startup.
func New() *Metrics {
	return &Metrics{
		MissionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_missions_started_total",
			Help: "Total number of missions dispatched to the Conductor.",
		}),
		MissionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_missions_completed_total",
			Help: "Total number of missions completed, by outcome.",
		}, []string{"outcome"}),
		TaskAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_task_attempts_total",
			Help: "Total number of task attempts, by outcome.",
		}, []string{"outcome"}),
		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_execution_duration_seconds",
			Help:    "Duration of Tool Foundry invocations in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name", "status"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_llm_request_duration_seconds",
			Help:    "Duration of LLM Streamer requests in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"role"}),
		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_llm_requests_total",
			Help: "Total number of LLM Streamer requests, by role and status.",
		}, []string{"role", "status"}),
		ActiveMissions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_active_missions",
			Help: "Current number of in-flight Conductor runs.",
		}),
		BroadcastSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_broadcast_sessions",
			Help: "Current number of open Broadcast Hub sockets.",
		}),
	}
}

// MissionStarted records a Conductor run beginning.
func (m *Metrics) MissionStarted() {
	if m == nil {
		return
	}
	m.MissionsStarted.Inc()
	m.ActiveMissions.Inc()
}

// MissionCompleted records a Conductor run's terminal outcome
// (success|failure|cancelled).
func (m *Metrics) MissionCompleted(outcome string) {
	if m == nil {
		return
	}
	m.MissionsCompleted.WithLabelValues(outcome).Inc()
	m.ActiveMissions.Dec()
}

// TaskAttempt records one task execution's outcome (success|failure).
func (m *Metrics) TaskAttempt(outcome string) {
	if m == nil {
		return
	}
	m.TaskAttempts.WithLabelValues(outcome).Inc()
}

// RecordToolExecution records a Tool Foundry invocation's latency and
// outcome (success|error).
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionDuration.WithLabelValues(toolName, status).Observe(durationSeconds)
}

// RecordLLMRequest records an LLM Streamer round trip's latency and
// outcome (success|error), by role.
func (m *Metrics) RecordLLMRequest(role, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequestDuration.WithLabelValues(role).Observe(durationSeconds)
	m.LLMRequestCounter.WithLabelValues(role, status).Inc()
}

// BroadcastSessionOpened increments the open Broadcast Hub socket gauge.
func (m *Metrics) BroadcastSessionOpened() {
	if m == nil {
		return
	}
	m.BroadcastSessions.Inc()
}

// BroadcastSessionClosed decrements the open Broadcast Hub socket gauge.
func (m *Metrics) BroadcastSessionClosed() {
	if m == nil {
		return
	}
	m.BroadcastSessions.Dec()
}
