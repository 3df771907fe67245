package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_Invoke(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	var failed bool
	flaky := func(context.Context, State, Runtime) NodeResult {
		if !failed {
			failed = true
			return Fail(errors.New("once"))
		}
		return NodeResult{}
	}

	g := NewStateGraph(nil)
	_ = g.AddNode("plan", noop)
	_ = g.AddNode("work", flaky, WithRetry(RetryPolicy{MaxAttempts: 2}))
	_ = g.AddEdge(Start, "plan")
	_ = g.AddConditionalEdges("plan", func(State) Route {
		return FanOut(Send{Node: "work"})
	}, nil)
	_ = g.AddEdge("work", End)
	cg := mustCompile(t, g, WithMetrics(metrics))

	if _, err := cg.Invoke(context.Background(), nil, nil, WithRunID("m1")); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(metrics.retries.WithLabelValues("m1", "work", "error")); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.fanOutBranches.WithLabelValues("m1", "work")); got != 1 {
		t.Errorf("fan_out_branches_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.inflightNodes); got != 0 {
		t.Errorf("inflight_nodes = %v after completion", got)
	}
	if got := testutil.ToFloat64(metrics.frontierSize); got != 0 {
		t.Errorf("frontier_size = %v after completion", got)
	}
	if n := testutil.CollectAndCount(metrics.stepLatency); n != 2 {
		t.Errorf("step_latency_ms series = %d, want 2", n)
	}
}

func TestPrometheusMetrics_Failures(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	slow := func(ctx context.Context, _ State, _ Runtime) NodeResult {
		<-ctx.Done()
		return Fail(ctx.Err())
	}
	cg := singleNode(t, slow, []NodeOption{WithTimeout(5 * time.Millisecond)}, WithMetrics(metrics))

	if _, err := cg.Invoke(context.Background(), nil, nil, WithRunID("m2")); err == nil {
		t.Fatal("expected timeout")
	}
	if got := testutil.ToFloat64(metrics.nodeFailures.WithLabelValues("m2", "work", "timeout")); got != 1 {
		t.Errorf("node_failures_total{reason=timeout} = %v, want 1", got)
	}

	bad := func(context.Context, State, Runtime) NodeResult { return Update(State{"x": 1}) }
	g := NewStateGraph(NewSchema(Field{Name: "y"}))
	_ = g.AddNode("bad", bad)
	_ = g.AddEdge(Start, "bad")
	_ = g.AddEdge("bad", End)
	cg = mustCompile(t, g, WithMetrics(metrics))

	if _, err := cg.Invoke(context.Background(), nil, nil, WithRunID("m3")); err == nil {
		t.Fatal("expected merge error")
	}
	if got := testutil.ToFloat64(metrics.mergeErrors.WithLabelValues("m3")); got != 1 {
		t.Errorf("merge_errors_total = %v, want 1", got)
	}
}

func TestPrometheusMetrics_DisableAndNil(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())
	metrics.Disable()
	metrics.IncrementRetries("r", "n", "error")
	if got := testutil.ToFloat64(metrics.retries.WithLabelValues("r", "n", "error")); got != 0 {
		t.Errorf("disabled metrics recorded %v", got)
	}
	metrics.Enable()
	metrics.IncrementRetries("r", "n", "error")
	if got := testutil.ToFloat64(metrics.retries.WithLabelValues("r", "n", "error")); got != 1 {
		t.Errorf("enabled metrics recorded %v", got)
	}

	var none *PrometheusMetrics
	none.AddInflightNodes(1)
	none.UpdateFrontierSize(3)
}
