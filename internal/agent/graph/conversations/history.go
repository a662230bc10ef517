package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

const DefaultMaxTurns = 6

// History turns caller-supplied prior turns into prompt context. Nothing is
// stored between requests; a question only sees the turns it arrived with.
type History struct {
	maxTurns int
}

func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// Messages converts the most recent prior turns into chat messages.
func (h *History) Messages(turns []model.Turn) []*schema.Message {
	recent := trimTail(turns, h.maxTurns)
	msgs := make([]*schema.Message, 0, len(recent))
	for _, t := range recent {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		switch t.Role {
		case "user":
			msgs = append(msgs, schema.UserMessage(content))
		case "assistant":
			msgs = append(msgs, schema.AssistantMessage(content, nil))
		}
	}
	return msgs
}

func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
