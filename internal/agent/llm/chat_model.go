// Package llm decorates chat models with the limits every text-generation
// call in the engine shares: a rate limiter, a per-call timeout, metrics,
// spans and cost accounting.
package llm

import (
	"context"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// ChatModel wraps a BaseChatModel. It is safe for concurrent use when the
// inner model is.
type ChatModel struct {
	inner   einomodel.BaseChatModel
	name    string
	limiter *rate.Limiter
	timeout time.Duration
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

// Wrap decorates inner. A nil limiter or zero timeout disables that limit.
// The limiter is usually shared by every model of one process.
func Wrap(inner einomodel.BaseChatModel, name string, limiter *rate.Limiter, timeout time.Duration) *ChatModel {
	return &ChatModel{inner: inner, name: name, limiter: limiter, timeout: timeout}
}

// NewLimiter builds the process-wide limiter; perSecond <= 0 means unlimited.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (m *ChatModel) Name() string { return m.name }

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, errx.WrapLLM(err)
		}
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	ctx, span := observers.StartSpan(ctx, "llm.ChatModel.Generate",
		attribute.String("model", m.name),
		attribute.Int("message_count", len(input)),
	)
	ctx = observers.ModelRun(ctx, m.name)

	start := time.Now()
	out, err := m.inner.Generate(ctx, input, opts...)
	observers.RecordLLMCall(m.name, time.Since(start), err)
	observers.EndSpan(span, err)
	if err != nil {
		return nil, errx.WrapLLM(err)
	}

	m.recordUsage(ctx, out)
	return out, nil
}

// Stream passes through with the rate limit only; a timeout would cut the
// stream off while the caller is still reading.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, errx.WrapLLM(err)
		}
	}
	sr, err := m.inner.Stream(observers.ModelRun(ctx, m.name), input, opts...)
	if err != nil {
		return nil, errx.WrapLLM(err)
	}
	return sr, nil
}

func (m *ChatModel) recordUsage(ctx context.Context, out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	cost := model.PricingFor(m.name).Cost(usage)
	observers.RecordLLMCost(m.name, cost.Total())
	if u := UsageFrom(ctx); u != nil {
		u.add(usage.TotalTokens, cost.Total())
	}

	logx.Ctx(ctx).Debug().
		Str("model", m.name).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", cost.Input).
		Float64("output_cost_usd", cost.Output).
		Float64("total_cost_usd", cost.Total()).
		Msg("LLM usage")
}
