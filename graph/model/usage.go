package model

import (
	"fmt"
	"sync"
	"time"
)

// Pricing is the cost of a model in USD per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost returns the USD cost of u under p.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1_000_000*p.InputPer1M +
		float64(u.OutputTokens)/1_000_000*p.OutputPer1M
}

// DefaultPricing returns a copy of the built-in pricing table.
// Prices change; override them with SetPricing.
func DefaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
		"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
		"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
		"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
		"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
		"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
		"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	}
}

// Call records one chat completion made by a node.
type Call struct {
	RunID   string
	Node    string
	Step    int
	Model   string
	Usage   Usage
	CostUSD float64
	At      time.Time
}

// UsageTracker accumulates token usage and cost across chat calls.
//
// A tracker may be shared by every ChatNode of a graph and by concurrent
// invocations; all methods are safe for concurrent use. Calls to models
// missing from the pricing table are recorded with zero cost.
//
// Example:
//
//	tracker := model.NewUsageTracker()
//	g.AddNode("chat", model.ChatNode(m, model.WithUsageTracker(tracker)))
//	// ... invoke ...
//	fmt.Printf("$%.4f\n", tracker.TotalCost())
type UsageTracker struct {
	mu      sync.RWMutex
	pricing map[string]Pricing
	calls   []Call
	byModel map[string]float64
	total   float64
	input   int64
	output  int64
}

// NewUsageTracker returns a tracker using DefaultPricing.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		pricing: DefaultPricing(),
		byModel: make(map[string]float64),
	}
}

// SetPricing overrides the price of one model.
func (t *UsageTracker) SetPricing(model string, p Pricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[model] = p
}

// Record prices c by its model, stores it, and returns the priced call.
// A zero At is set to the current time.
func (t *UsageTracker) Record(c Call) Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	c.CostUSD = t.pricing[c.Model].Cost(c.Usage)
	if c.At.IsZero() {
		c.At = time.Now()
	}

	t.calls = append(t.calls, c)
	t.total += c.CostUSD
	t.byModel[c.Model] += c.CostUSD
	t.input += int64(c.Usage.InputTokens)
	t.output += int64(c.Usage.OutputTokens)
	return c
}

// TotalCost returns the accumulated cost in USD.
func (t *UsageTracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// CostByModel returns a copy of the per-model cost breakdown.
func (t *UsageTracker) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.byModel))
	for m, c := range t.byModel {
		out[m] = c
	}
	return out
}

// Calls returns a copy of the recorded calls in recording order.
func (t *UsageTracker) Calls() []Call {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Tokens returns the total input and output token counts.
func (t *UsageTracker) Tokens() (input, output int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.input, t.output
}

// Reset clears recorded calls and totals. Pricing is kept.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = nil
	t.byModel = make(map[string]float64)
	t.total = 0
	t.input = 0
	t.output = 0
}

func (t *UsageTracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return fmt.Sprintf("UsageTracker{Calls: %d, Cost: $%.4f, InputTokens: %d, OutputTokens: %d}",
		len(t.calls), t.total, t.input, t.output)
}
