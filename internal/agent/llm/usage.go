package llm

import (
	"context"
	"sync"
)

// Usage accumulates token counts and cost for one question.
type Usage struct {
	mu      sync.Mutex
	tokens  int
	costUSD float64
	calls   int
}

func (u *Usage) add(tokens int, cost float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens += tokens
	u.costUSD += cost
	u.calls++
}

// Totals returns the accumulated calls, tokens and USD cost.
func (u *Usage) Totals() (calls, tokens int, costUSD float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, u.tokens, u.costUSD
}

type usageKey struct{}

// WithUsage attaches a fresh accumulator to ctx.
func WithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

func UsageFrom(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}
