package answer

import (
	"context"
	"slices"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/hospital-graph-rag/server/internal/agent/graph/conversations"
	"github.com/hospital-graph-rag/server/internal/agent/graph/prompts"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// Result carries the answer fields of a FinalAnswer.
type Result struct {
	Answer   string
	Grounded bool
	Tools    []model.ToolName
}

// Synthesizer writes the final answer from aggregated evidence.
type Synthesizer struct {
	chat    einomodel.BaseChatModel
	history *conversations.History
}

func NewSynthesizer(chat einomodel.BaseChatModel, history *conversations.History) *Synthesizer {
	if history == nil {
		history = conversations.NewHistory(0)
	}
	return &Synthesizer{chat: chat, history: history}
}

// Answer never fails. Without evidence it returns the fixed
// insufficient-evidence answer and does not call the model; if the model
// fails it falls back to a digest of the evidence.
func (s *Synthesizer) Answer(ctx context.Context, question string, turns []model.Turn, ev Evidence) Result {
	if ev.Empty() {
		return Result{Answer: model.InsufficientEvidenceAnswer, Grounded: false, Tools: []model.ToolName{}}
	}
	tools := slices.Clone(ev.Tools)
	log := logx.Ctx(ctx)

	msgs, err := prompts.RenderAnswer(ctx, prompts.AnswerInput{
		Question: question,
		History:  s.history.Messages(turns),
		Evidence: ev.Render(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Answer prompt render failed; using evidence digest")
		return Result{Answer: ev.Digest(), Grounded: true, Tools: tools}
	}

	out, err := s.chat.Generate(ctx, msgs)
	if err != nil {
		log.Warn().Err(err).Msg("Answer model failed; using evidence digest")
		return Result{Answer: ev.Digest(), Grounded: true, Tools: tools}
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		log.Warn().Msg("Answer model returned no content; using evidence digest")
		return Result{Answer: ev.Digest(), Grounded: true, Tools: tools}
	}

	return Result{Answer: strings.TrimSpace(out.Content), Grounded: true, Tools: tools}
}
