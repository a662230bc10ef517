package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

// RouterInput carries what the routing step sees: the question, earlier
// turns and a rendering of the trace so far.
type RouterInput struct {
	Question   string
	History    []*schema.Message
	Scratchpad string
	StepsLeft  int
	MaxSteps   int
}

// RenderRouter renders the routing conversation via the Eino prompt
// component so prompt callbacks fire.
func RenderRouter(ctx context.Context, in RouterInput) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(routerSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.Question}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"StructuredTool": model.ToolStructured,
		"PassageTool":    model.ToolPassage,
		"FinishTool":     model.ToolFinish,
		"StepsLeft":      in.StepsLeft,
		"MaxSteps":       in.MaxSteps,
		"Scratchpad":     in.Scratchpad,
		"Question":       in.Question,
		"history":        in.History,
	})
	if err != nil {
		return nil, fmt.Errorf("router prompt render: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("router prompt render: empty result")
	}
	return msgs, nil
}
