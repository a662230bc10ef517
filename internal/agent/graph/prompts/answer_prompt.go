package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/answer_prompt.txt
var answerSystemPrompt string

type AnswerInput struct {
	Question string
	History  []*schema.Message
	Evidence string
}

// RenderAnswer renders the grounded answer conversation.
func RenderAnswer(ctx context.Context, in AnswerInput) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(answerSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.Question}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Evidence": in.Evidence,
		"Question": in.Question,
		"history":  in.History,
	})
	if err != nil {
		return nil, fmt.Errorf("answer prompt render: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("answer prompt render: empty result")
	}
	return msgs, nil
}
