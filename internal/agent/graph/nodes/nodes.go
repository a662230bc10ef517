package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/hospital-graph-rag/server/internal/agent/answer"
	"github.com/hospital-graph-rag/server/internal/agent/graph/parsers"
	"github.com/hospital-graph-rag/server/internal/agent/graph/tools"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

const (
	NodeInput         = "input"
	NodeThink         = "think"
	NodeActStructured = "act_structured"
	NodeActPassage    = "act_passage"
	NodeFinalize      = "finalize"
	NodeFail          = "fail"

	// a malformed decision is re-asked once
	decisionAttempts = 2
)

// NewInputPreHandler seeds the per-request state from the question.
func NewInputPreHandler(maxSteps int) func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.RequestID = in.RequestID
		s.Input = in
		s.Trace = model.NewAgentTrace(maxSteps)
		s.ToolFailures = make(map[model.ToolName]int)
		s.Failure = nil
		s.State = model.StateThinking
		return in, nil
	}
}

// NewInputNode starts the loop with an empty step signal.
func NewInputNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (model.StepSignal, error) {
		logx.Ctx(ctx).Debug().Str("question", in.Question).Int("prior_turns", len(in.PriorTurns)).Msg("Routing question")
		return model.StepSignal{}, nil
	})
}

// NewThinkNode chooses the next action. Budget checks happen here so that
// every path into a tool passes through them.
func NewThinkNode(decider *Decider) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.StepSignal) (model.Decision, error) {
		log := logx.Ctx(ctx)

		var (
			snap   model.TraceSnapshot
			failed bool
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.State = model.StateThinking
			snap = model.TraceSnapshot{Input: s.Input, Steps: s.Trace.Steps(), Max: s.Trace.Max()}
			failed = s.Failure != nil
			return nil
		})
		if err != nil {
			return model.Decision{}, fmt.Errorf("failed to access state: %w", err)
		}
		if failed {
			return model.Decision{Action: model.ActionFail}, nil
		}
		if err := ctx.Err(); err != nil {
			return fail(ctx, failureFrom(err, errx.KindCanceled))
		}

		var d model.Decision
		for attempt := 1; attempt <= decisionAttempts; attempt++ {
			d, err = decider.Decide(ctx, snap)
			if err == nil {
				break
			}
			log.Warn().Err(err).Int("attempt", attempt).Int("step", len(snap.Steps)+1).Msg("Router decision failed")
			if ctx.Err() != nil {
				break
			}
		}
		if err != nil {
			if errors.Is(err, parsers.ErrMalformedDecision) {
				return fail(ctx, &model.Failure{
					Kind:    errx.KindRoutingExhausted,
					Message: fmt.Sprintf("no valid routing decision after %d attempts: %v", decisionAttempts, err),
				})
			}
			return fail(ctx, failureFrom(err, errx.KindExecutionFailed))
		}

		if d.Action == model.ActionFinish {
			log.Debug().Str("reason", d.Reason).Int("steps", len(snap.Steps)).Msg("Router finished")
			return d, nil
		}

		if len(snap.Steps) >= snap.Max {
			return fail(ctx, &model.Failure{
				Kind:    errx.KindRoutingExhausted,
				Message: fmt.Sprintf("step budget of %d exhausted", snap.Max),
			})
		}
		if d.Input.Question == "" {
			d.Input.Question = snap.Input.Question
		}

		log.Debug().
			Str("action", string(d.Action)).
			Str("tool_question", d.Input.Question).
			Str("scope", d.Input.Scope).
			Int("step", len(snap.Steps)+1).
			Msg("Router chose a tool")
		return d, nil
	})
}

// fail records the first failure and routes to the fail node.
func fail(ctx context.Context, f *model.Failure) (model.Decision, error) {
	err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		if s.Failure == nil {
			s.Failure = f
		}
		return nil
	})
	if err != nil {
		return model.Decision{}, fmt.Errorf("failed to access state: %w", err)
	}
	logx.Ctx(ctx).Warn().Str("kind", string(f.Kind)).Str("message", f.Message).Msg("Routing abandoned")
	return model.Decision{Action: model.ActionFail, Reason: f.Message}, nil
}

// NewRouteCondition maps a decision to the node that carries it out.
func NewRouteCondition() func(context.Context, model.Decision) (string, error) {
	return func(ctx context.Context, d model.Decision) (string, error) {
		switch d.Action {
		case model.ActionStructured:
			return NodeActStructured, nil
		case model.ActionPassage:
			return NodeActPassage, nil
		case model.ActionFinish:
			return NodeFinalize, nil
		default:
			return NodeFail, nil
		}
	}
}

// NewActPreHandler marks the acting state.
func NewActPreHandler(state model.RouterState) func(context.Context, model.Decision, *model.AppState) (model.Decision, error) {
	return func(ctx context.Context, d model.Decision, s *model.AppState) (model.Decision, error) {
		s.State = state
		return d, nil
	}
}

// NewActNode invokes one tool. A cancelled request never reaches the tool.
func NewActNode(tool tools.Tool) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, d model.Decision) (model.StepSignal, error) {
		var turns []model.Turn
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			turns = s.Input.PriorTurns
			return nil
		})
		if err != nil {
			return model.StepSignal{}, fmt.Errorf("failed to access state: %w", err)
		}

		var obs model.ToolObservation
		if err := ctx.Err(); err != nil {
			obs = model.ErrorObservation(tool.Name(), errx.ExecutionFailed(err, "request canceled before the tool ran"))
		} else {
			obs = tool.Invoke(ctx, d.Input, turns)
		}
		return model.StepSignal{Decision: d, Observation: &obs}, nil
	})
}

// NewObservePostHandler appends the step to the trace and enforces the
// consecutive tool failure budget.
func NewObservePostHandler(maxToolFailures int) func(context.Context, model.StepSignal, *model.AppState) (model.StepSignal, error) {
	if maxToolFailures <= 0 {
		maxToolFailures = model.DefaultMaxToolFailures
	}
	return func(ctx context.Context, out model.StepSignal, s *model.AppState) (model.StepSignal, error) {
		s.State = model.StateObserving
		if out.Observation == nil {
			return out, fmt.Errorf("act node produced no observation")
		}
		obs := *out.Observation

		if err := s.Trace.Append(model.TraceStep{
			Thought:     out.Decision.Thought,
			Tool:        obs.Tool,
			Input:       out.Decision.Input,
			Observation: obs,
		}); err != nil {
			return out, err
		}

		log := logx.Ctx(ctx)
		if obs.Kind != model.ObservationError {
			clear(s.ToolFailures)
			log.Debug().
				Str("tool", string(obs.Tool)).
				Str("kind", string(obs.Kind)).
				Int("step", s.Trace.Len()).
				Dur("duration", obs.Duration).
				Msg("Observation recorded")
			return out, nil
		}

		// a streak only counts failures of one tool with nothing in between
		for tool := range s.ToolFailures {
			if tool != obs.Tool {
				delete(s.ToolFailures, tool)
			}
		}
		s.ToolFailures[obs.Tool]++
		log.Warn().Err(obs.Err).
			Str("tool", string(obs.Tool)).
			Int("step", s.Trace.Len()).
			Int("consecutive_failures", s.ToolFailures[obs.Tool]).
			Msg("Tool failed")

		switch {
		case s.Failure != nil:
		case errx.KindOf(obs.Err) == errx.KindCanceled:
			s.Failure = failureFrom(obs.Err, errx.KindCanceled)
		case s.ToolFailures[obs.Tool] >= maxToolFailures:
			s.Failure = &model.Failure{
				Kind:    errx.KindExecutionFailed,
				Message: fmt.Sprintf("%s failed %d times in a row: %v", obs.Tool, s.ToolFailures[obs.Tool], obs.Err),
			}
		}
		return out, nil
	}
}

type finalSnapshot struct {
	requestID string
	input     model.QueryInput
	steps     []model.TraceStep
	failure   *model.Failure
}

func takeFinalSnapshot(ctx context.Context, next model.RouterState) (finalSnapshot, error) {
	var snap finalSnapshot
	err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		s.State = next
		snap = finalSnapshot{requestID: s.RequestID, input: s.Input, steps: s.Trace.Steps()}
		if s.Failure != nil {
			f := *s.Failure
			snap.failure = &f
		}
		return nil
	})
	if err != nil {
		return finalSnapshot{}, fmt.Errorf("failed to access state: %w", err)
	}
	return snap, nil
}

// NewFinalizeNode answers from every observation in the trace. A trace
// without evidence gets the fixed insufficient-evidence answer with a
// NoEvidence failure attached.
func NewFinalizeNode(answerer *answer.Synthesizer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Decision) (*model.FinalAnswer, error) {
		snap, err := takeFinalSnapshot(ctx, model.StateFinalizing)
		if err != nil {
			return nil, err
		}

		ev := answer.Aggregate(snap.steps)
		res := answerer.Answer(ctx, snap.input.Question, snap.input.PriorTurns, ev)
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.State = model.StateFinalized
			return nil
		})

		fa := &model.FinalAnswer{
			RequestID: snap.requestID,
			Answer:    res.Answer,
			Grounded:  res.Grounded,
			Tools:     res.Tools,
			State:     model.StateFinalized,
			Steps:     len(snap.steps),
		}
		if ev.Empty() {
			fa.Failure = &model.Failure{Kind: errx.KindNoEvidence, Message: "no tool returned rows or passages"}
		}
		return fa, nil
	})
}

// NewFailNode ends a request that could not finish normally. It never
// answers from partial evidence: the result is the fixed unable-to-answer
// message with the failure attached.
func NewFailNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, d model.Decision) (*model.FinalAnswer, error) {
		snap, err := takeFinalSnapshot(ctx, model.StateFailed)
		if err != nil {
			return nil, err
		}
		f := snap.failure
		if f == nil {
			msg := d.Reason
			if msg == "" {
				msg = "routing stopped"
			}
			f = &model.Failure{Kind: errx.KindRoutingExhausted, Message: msg}
		}

		logx.Ctx(ctx).Warn().
			Str("kind", string(f.Kind)).
			Str("reason", f.Message).
			Int("steps", len(snap.steps)).
			Msg("Routing failed; returning unable-to-answer")

		fa := model.Unanswerable(snap.requestID, f.Kind, f.Message)
		fa.Steps = len(snap.steps)
		return fa, nil
	})
}
