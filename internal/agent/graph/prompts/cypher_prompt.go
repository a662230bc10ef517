package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/cypher_prompt.txt
var cypherSystemPrompt string

// Rejection is a generated query that was refused, with the reason.
type Rejection struct {
	Cypher string
	Reason string
}

type CypherInput struct {
	Schema     string
	Question   string
	History    []*schema.Message
	Rejections []Rejection
}

// RenderCypher renders the query generation conversation. Earlier rejected
// attempts are replayed as assistant/user pairs so the model sees what it
// wrote and why it was refused.
func RenderCypher(ctx context.Context, in CypherInput) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(cypherSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.Question}}"),
		schema.MessagesPlaceholder("rejections", true),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Schema":     in.Schema,
		"Question":   in.Question,
		"history":    in.History,
		"rejections": rejectionMessages(in.Rejections),
	})
	if err != nil {
		return nil, fmt.Errorf("cypher prompt render: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("cypher prompt render: empty result")
	}
	return msgs, nil
}

func rejectionMessages(rs []Rejection) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2*len(rs))
	for _, r := range rs {
		msgs = append(msgs,
			schema.AssistantMessage(strings.TrimSpace(r.Cypher), nil),
			schema.UserMessage(fmt.Sprintf(
				"That query was rejected: %s\nWrite a corrected query that fixes this problem. Reply with the Cypher query only.",
				r.Reason,
			)),
		)
	}
	return msgs
}
