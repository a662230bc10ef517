package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/graph/conversations"
	"github.com/hospital-graph-rag/server/internal/agent/graph/parsers"
	"github.com/hospital-graph-rag/server/internal/agent/graph/prompts"
	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// Decider asks the router model for the next action.
type Decider struct {
	chat    einomodel.BaseChatModel
	tools   []*schema.ToolInfo
	history *conversations.History
}

// NewDecider offers tools to the model as function declarations on every
// call, so the same chat model can be shared by concurrent requests.
func NewDecider(chat einomodel.BaseChatModel, tools []*schema.ToolInfo, history *conversations.History) *Decider {
	if history == nil {
		history = conversations.NewHistory(0)
	}
	return &Decider{chat: chat, tools: tools, history: history}
}

// Decide makes one routing call. A reply that is not exactly one known
// action fails with parsers.ErrMalformedDecision; a model failure is
// returned as is.
func (d *Decider) Decide(ctx context.Context, snap model.TraceSnapshot) (model.Decision, error) {
	msgs, err := prompts.RenderRouter(ctx, prompts.RouterInput{
		Question:   snap.Input.Question,
		History:    d.history.Messages(snap.Input.PriorTurns),
		Scratchpad: renderScratchpad(snap.Steps),
		StepsLeft:  max(snap.Max-len(snap.Steps), 0),
		MaxSteps:   snap.Max,
	})
	if err != nil {
		return model.Decision{}, fmt.Errorf("render router prompt: %w", err)
	}

	var opts []einomodel.Option
	if len(d.tools) > 0 {
		opts = append(opts, einomodel.WithTools(d.tools))
	}
	out, err := d.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return model.Decision{}, err
	}
	return parsers.ParseDecision(out)
}
