package model

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// Gemini standard text pricing. Self-hosted models are free and fall through to zero.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns pricing for a model, zero when unknown.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// MessageCost prices the usage reported on a model reply.
func MessageCost(msg *schema.Message, model string) float64 {
	if msg == nil || msg.ResponseMeta == nil {
		return 0
	}
	_, _, total := ComputeCost(msg.ResponseMeta.Usage, ResolvePricing(model))
	return total
}

// CostMeter sums the cost of every model call made for one incoming message.
type CostMeter struct {
	mu    sync.Mutex
	total float64
}

func (m *CostMeter) Add(usd float64) {
	m.mu.Lock()
	m.total += usd
	m.mu.Unlock()
}

func (m *CostMeter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

type costMeterKey struct{}

// WithCostMeter attaches a fresh meter to ctx.
func WithCostMeter(ctx context.Context) (context.Context, *CostMeter) {
	m := &CostMeter{}
	return context.WithValue(ctx, costMeterKey{}, m), m
}

// AddCost records usd on the meter in ctx, if any.
func AddCost(ctx context.Context, usd float64) {
	if m, ok := ctx.Value(costMeterKey{}).(*CostMeter); ok {
		m.Add(usd)
	}
}
