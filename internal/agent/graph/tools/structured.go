package tools

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/graph/prompts"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	"github.com/hospital-graph-rag/server/internal/agent/query"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// ===================================
// Hospital Graph Query Tool
// ===================================

// StructuredTool answers from the graph store: synthesize, validate, execute.
type StructuredTool struct {
	synth    *query.Synthesizer
	executor *query.Executor
}

var _ Tool = (*StructuredTool)(nil)

func NewStructuredTool(synth *query.Synthesizer, executor *query.Executor) *StructuredTool {
	return &StructuredTool{synth: synth, executor: executor}
}

func (t *StructuredTool) Name() model.ToolName { return model.ToolStructured }

func (t *StructuredTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(model.ToolStructured),
		Desc: "Answer questions using hospital graph data: hospitals, patients, visits, physicians, payers, billing amounts, admission types, test results, dates, counts, averages and rankings.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     schema.String,
				Desc:     "A complete, self-contained question about the hospital data, e.g. \"Which physician has billed the least to Cigna?\".",
				Required: true,
			},
		}),
	}
}

func (t *StructuredTool) Invoke(ctx context.Context, in model.ToolInput, turns []model.Turn) model.ToolObservation {
	return instrument(ctx, model.ToolStructured, in, func(ctx context.Context) model.ToolObservation {
		return t.run(ctx, in, turns)
	})
}

func (t *StructuredTool) run(ctx context.Context, in model.ToolInput, turns []model.Turn) model.ToolObservation {
	req := query.Request{Question: in.Question, PriorTurns: turns}

	plan, err := t.synth.Synthesize(ctx, req)
	if err != nil {
		return model.ErrorObservation(model.ToolStructured, err)
	}

	res, err := t.executor.Execute(ctx, plan)
	if err != nil && query.IsStatementError(err) {
		// the store refused the text; one more synthesis round sees why
		logx.Ctx(ctx).Warn().Err(err).Str("cypher", plan.Cypher()).Msg("Store rejected validated query; re-synthesizing")
		req.Rejected = []prompts.Rejection{{
			Cypher: plan.Cypher(),
			Reason: "the database could not run it: " + err.Error(),
		}}
		plan, err = t.synth.Synthesize(ctx, req)
		if err != nil {
			return model.ErrorObservation(model.ToolStructured, err)
		}
		res, err = t.executor.Execute(ctx, plan)
	}
	if err != nil {
		return model.ErrorObservation(model.ToolStructured, err)
	}

	return model.RowsObservation(model.ToolStructured, res)
}
