// Package tools holds the retrieval tools the router can call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// Tool is one retrieval capability. Invoke never returns an error; failures
// come back as error observations.
type Tool interface {
	Name() model.ToolName
	Info() *schema.ToolInfo
	Invoke(ctx context.Context, in model.ToolInput, turns []model.Turn) model.ToolObservation
}

// ===================================
// Finish pseudo-tool
// ===================================

// FinishInfo describes the function the router calls to stop acting.
func FinishInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(model.ToolFinish),
		Desc: "Stop calling tools. Use this once the observations are enough to answer the question, or when no tool can help further.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"reason": {
				Type:     schema.String,
				Desc:     "One sentence explaining why no further tool call is needed.",
				Required: true,
			},
		}),
	}
}

// GetToolInfos returns the function declarations bound to the router model:
// every tool plus finish.
func GetToolInfos(ts ...Tool) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(ts)+1)
	for _, t := range ts {
		infos = append(infos, t.Info())
	}
	return append(infos, FinishInfo())
}

// instrument wraps one tool run with callbacks, a span, metrics and timing.
func instrument(ctx context.Context, name model.ToolName, in model.ToolInput, run func(context.Context) model.ToolObservation) model.ToolObservation {
	start := time.Now()
	args, _ := json.Marshal(in)

	ctx = observers.ToolStart(ctx, string(name), string(args))
	ctx, span := observers.StartSpan(ctx, "tools."+string(name),
		attribute.String("tool", string(name)),
		attribute.Bool("scoped", in.Scope != ""),
	)

	obs := run(ctx)
	obs.Tool = name
	obs.Duration = time.Since(start)

	observers.EndSpan(span, obs.Err)
	observers.ToolEnd(ctx, summarize(obs), obs.Err)
	observers.RecordTool(obs)
	return obs
}

func summarize(obs model.ToolObservation) string {
	switch obs.Kind {
	case model.ObservationRows:
		n := 0
		if obs.Result != nil {
			n = len(obs.Result.Rows)
		}
		return fmt.Sprintf("%d rows", n)
	case model.ObservationPassages:
		return fmt.Sprintf("%d passages", len(obs.Passages))
	default:
		return "error"
	}
}
