package tools

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	"github.com/hospital-graph-rag/server/internal/agent/retrieval"
)

// ===================================
// Hospital Review Search Tool
// ===================================

// PassageTool answers from patient reviews by vector similarity.
type PassageTool struct {
	retriever *retrieval.Retriever
	k         int
}

var _ Tool = (*PassageTool)(nil)

// NewPassageTool searches k passages per call; k <= 0 uses the retriever's default.
func NewPassageTool(retriever *retrieval.Retriever, k int) *PassageTool {
	return &PassageTool{retriever: retriever, k: k}
}

func (t *PassageTool) Name() model.ToolName { return model.ToolPassage }

func (t *PassageTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: string(model.ToolPassage),
		Desc: "Answer questions about patient reviews and experiences: opinions, complaints and praise about hospitals, physicians, nurses and stays.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     schema.String,
				Desc:     "The question to search reviews for, e.g. \"What have patients said about hospital efficiency?\".",
				Required: true,
			},
			"scope": {
				Type: schema.String,
				Desc: "Optional physician, patient or hospital name the reviews must mention.",
			},
		}),
	}
}

func (t *PassageTool) Invoke(ctx context.Context, in model.ToolInput, _ []model.Turn) model.ToolObservation {
	return instrument(ctx, model.ToolPassage, in, func(ctx context.Context) model.ToolObservation {
		passages, err := t.retriever.Retrieve(ctx, in.Question, t.k, in.Scope)
		if err != nil {
			return model.ErrorObservation(model.ToolPassage, err)
		}
		return model.PassagesObservation(model.ToolPassage, passages)
	})
}
