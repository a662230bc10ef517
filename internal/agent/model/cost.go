package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing is the USD price of one million text tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// Cost is the priced token usage of one model call.
type Cost struct {
	Input  float64
	Output float64
}

func (c Cost) Total() float64 { return c.Input + c.Output }

// Ordered longest name first so prefix matching picks the most specific entry.
var geminiPricing = []struct {
	name string
	Pricing
}{
	{"gemini-2.5-flash-lite", Pricing{InputPerM: 0.10, OutputPerM: 0.40}},
	{"gemini-2.5-flash", Pricing{InputPerM: 0.30, OutputPerM: 2.50}},
	{"gemini-2.5-pro", Pricing{InputPerM: 1.25, OutputPerM: 10.00}},
	{"gemini-2.0-flash", Pricing{InputPerM: 0.10, OutputPerM: 0.40}},
}

// PricingFor returns the pricing of a model. Versioned names such as
// "gemini-2.5-flash-001" resolve to their base model; unknown models cost zero.
func PricingFor(model string) Pricing {
	model = strings.TrimPrefix(model, "models/")
	for _, p := range geminiPricing {
		if strings.HasPrefix(model, p.name) {
			return p.Pricing
		}
	}
	return Pricing{}
}

// Cost prices a call's token usage.
func (p Pricing) Cost(usage *schema.TokenUsage) Cost {
	if usage == nil {
		return Cost{}
	}
	return Cost{
		Input:  p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0,
		Output: p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0,
	}
}
