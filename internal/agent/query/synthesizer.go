package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/hospital-graph-rag/server/internal/agent/graph/conversations"
	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/graph/parsers"
	"github.com/hospital-graph-rag/server/internal/agent/graph/prompts"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// Synthesizer turns a question into a validated Cypher plan.
type Synthesizer struct {
	chat        einomodel.BaseChatModel
	validator   *Validator
	schemaText  string
	maxAttempts int
	history     *conversations.History
}

func NewSynthesizer(chat einomodel.BaseChatModel, validator *Validator, schema model.SchemaDescriptor, maxAttempts int, history *conversations.History) *Synthesizer {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxSynthesisAttempts
	}
	if history == nil {
		history = conversations.NewHistory(0)
	}
	return &Synthesizer{
		chat:        chat,
		validator:   validator,
		schemaText:  schema.Describe(),
		maxAttempts: maxAttempts,
		history:     history,
	}
}

// Request is one synthesis job.
type Request struct {
	Question   string
	PriorTurns []model.Turn
	// Rejected seeds the conversation with earlier refusals, such as a
	// query the store could not compile.
	Rejected []prompts.Rejection
}

// Synthesize asks the model for a query and validates it. Every rejection is
// replayed to the model on the next attempt. After maxAttempts rejections it
// returns a SynthesisExhausted error; a model failure is returned at once.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (ValidatedPlan, error) {
	log := logx.Ctx(ctx)
	rejections := slices.Clone(req.Rejected)
	history := s.history.Messages(req.PriorTurns)

	var last error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ValidatedPlan{}, errx.ExecutionFailed(err, "query synthesis interrupted")
		}

		msgs, err := prompts.RenderCypher(ctx, prompts.CypherInput{
			Schema:     s.schemaText,
			Question:   req.Question,
			History:    history,
			Rejections: rejections,
		})
		if err != nil {
			return ValidatedPlan{}, fmt.Errorf("render cypher prompt: %w", err)
		}

		out, err := s.chat.Generate(ctx, msgs)
		if err != nil {
			return ValidatedPlan{}, errx.WrapLLM(err)
		}
		content := ""
		if out != nil {
			content = out.Content
		}

		cypher, err := parsers.ExtractCypher(content)
		if err != nil {
			observers.RecordValidation(false)
			log.Debug().Err(err).Int("attempt", attempt).Msg("No query in model reply")
			rejections = append(rejections, prompts.Rejection{Cypher: placeholder(content), Reason: err.Error()})
			last = err
			continue
		}

		verdict := s.validator.Validate(model.QueryPlan{Cypher: cypher, Question: req.Question, Attempt: attempt})
		observers.RecordValidation(verdict.OK)
		if plan, ok := verdict.Validated(); ok {
			log.Debug().Int("attempt", attempt).Str("cypher", plan.Cypher()).Msg("Query accepted")
			return plan, nil
		}

		log.Debug().Int("attempt", attempt).Str("reason", verdict.Reason).Str("cypher", cypher).Msg("Query rejected")
		rejections = append(rejections, prompts.Rejection{Cypher: cypher, Reason: verdict.Reason})
		last = errors.New(verdict.Reason)
	}

	return ValidatedPlan{}, errx.SynthesisExhausted(s.maxAttempts, last)
}

// placeholder keeps an empty reply from becoming an empty assistant message.
func placeholder(content string) string {
	if strings.TrimSpace(content) == "" {
		return "(no query)"
	}
	return content
}
