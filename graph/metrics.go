package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics for monitoring
// graph execution.
//
// Metrics exposed (all namespaced with "stategraph_"):
//
// 1. inflight_nodes (gauge): work items currently executing.
// Use: Monitor concurrency levels and the effect of WithMaxConcurrent.
//
// 2. frontier_size (gauge): work items dispatched in the current step.
// Use: Track fan-out width.
//
// 3. step_latency_ms (histogram): node execution duration in milliseconds,
// retries included.
// Labels: run_id, node_id, status (success/error/timeout/cancelled).
//
// 4. retries_total (counter): retry attempts.
// Labels: run_id, node_id, reason (error/timeout).
//
// 5. fan_out_branches_total (counter): Send work items dispatched.
// Labels: run_id, node_id (the target node).
//
// 6. node_failures_total (counter): node executions that failed after
// their retry policy gave up.
// Labels: run_id, node_id, reason (error/timeout).
//
// 7. merge_errors_total (counter): updates rejected at the merge barrier.
// Labels: run_id.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	compiled, _ := g.Compile(graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use and are no-ops on a nil receiver.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	frontierSize  prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	retries        *prometheus.CounterVec
	fanOutBranches *prometheus.CounterVec
	nodeFailures   *prometheus.CounterVec
	mergeErrors    *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all graph execution metrics
// with the provided registry. A nil registry means
// prometheus.DefaultRegisterer.
//
// Registering twice with the same registry panics, as with any promauto
// collector; use a dedicated registry per PrometheusMetrics.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stategraph",
		Name:      "inflight_nodes",
		Help:      "Current number of work items executing concurrently",
	})

	pm.frontierSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stategraph",
		Name:      "frontier_size",
		Help:      "Number of work items dispatched in the current step",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stategraph",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds, retries included",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
	}, []string{"run_id", "node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "retries_total",
		Help:      "Cumulative count of node retry attempts",
	}, []string{"run_id", "node_id", "reason"})

	pm.fanOutBranches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "fan_out_branches_total",
		Help:      "Send work items dispatched by dynamic fan-out",
	}, []string{"run_id", "node_id"})

	pm.nodeFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "node_failures_total",
		Help:      "Node executions that failed after their retry policy gave up",
	}, []string{"run_id", "node_id", "reason"})

	pm.mergeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stategraph",
		Name:      "merge_errors_total",
		Help:      "Node updates rejected by the state schema or a reducer",
	}, []string{"run_id"})

	return pm
}

func (pm *PrometheusMetrics) active() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency records the execution duration of a node.
//
// status is one of "success", "error", "timeout" or "cancelled".
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.active() {
		return
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one scheduled retry of a node.
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.active() {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// AddFanOutBranches counts n Send items dispatched to nodeID.
func (pm *PrometheusMetrics) AddFanOutBranches(runID, nodeID string, n int) {
	if !pm.active() {
		return
	}
	pm.fanOutBranches.WithLabelValues(runID, nodeID).Add(float64(n))
}

// IncrementNodeFailures counts a node execution that exhausted or skipped
// its retries.
func (pm *PrometheusMetrics) IncrementNodeFailures(runID, nodeID, reason string) {
	if !pm.active() {
		return
	}
	pm.nodeFailures.WithLabelValues(runID, nodeID, reason).Inc()
}

// IncrementMergeErrors counts an update rejected at the merge barrier.
func (pm *PrometheusMetrics) IncrementMergeErrors(runID string) {
	if !pm.active() {
		return
	}
	pm.mergeErrors.WithLabelValues(runID).Inc()
}

// UpdateFrontierSize sets the number of work items in the current step.
func (pm *PrometheusMetrics) UpdateFrontierSize(n int) {
	if !pm.active() {
		return
	}
	pm.frontierSize.Set(float64(n))
}

// AddInflightNodes adjusts the number of executing work items by delta.
func (pm *PrometheusMetrics) AddInflightNodes(delta int) {
	if !pm.active() {
		return
	}
	pm.inflightNodes.Add(float64(delta))
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears the gauges. Counters and histograms are cumulative and
// keep their values. This does not unregister metrics from the registry.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightNodes.Set(0)
	pm.frontierSize.Set(0)
}
