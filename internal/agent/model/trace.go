package model

import (
	"errors"
	"time"
)

// ToolName identifies a retrieval tool exposed to the router.
type ToolName string

const (
	// ToolStructured answers from the graph store through generated Cypher.
	ToolStructured ToolName = "hospital_graph_query"
	// ToolPassage answers from patient review passages by vector similarity.
	ToolPassage ToolName = "hospital_review_search"
	// ToolFinish is the pseudo-tool the router calls to stop acting.
	ToolFinish ToolName = "finish"
)

// Action is the router's discrete choice for one step.
type Action string

const (
	ActionStructured Action = "structured"
	ActionPassage    Action = "passage"
	ActionFinish     Action = "finish"
	// ActionFail is never chosen by the model; the router emits it when a
	// budget is exhausted or the request is cancelled.
	ActionFail Action = "fail"
)

// Tool maps an acting action to its tool name.
func (a Action) Tool() ToolName {
	switch a {
	case ActionStructured:
		return ToolStructured
	case ActionPassage:
		return ToolPassage
	default:
		return ""
	}
}

// ToolInput is what the router hands to a tool.
type ToolInput struct {
	Question string `json:"question"`
	Scope    string `json:"scope,omitempty"`
}

// Decision is the output of one Thinking step.
type Decision struct {
	Action  Action
	Thought string
	Input   ToolInput
	Reason  string
}

// Row maps a column name to a scalar value.
type Row map[string]any

// QueryResult is the ordered output of one structured query. An empty Rows
// slice is the explicit empty-result marker.
type QueryResult struct {
	Cypher  string
	Columns []string
	Rows    []Row
}

func (r QueryResult) Empty() bool { return len(r.Rows) == 0 }

// Passage is one unstructured review snippet.
type Passage struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ObservationKind string

const (
	ObservationRows     ObservationKind = "rows"
	ObservationPassages ObservationKind = "passages"
	ObservationError    ObservationKind = "error"
)

// ToolObservation is the tagged result of one tool invocation.
type ToolObservation struct {
	Tool     ToolName
	Kind     ObservationKind
	Result   *QueryResult
	Passages []Passage
	Err      error
	Duration time.Duration
}

// RowsObservation wraps a query result.
func RowsObservation(tool ToolName, r QueryResult) ToolObservation {
	return ToolObservation{Tool: tool, Kind: ObservationRows, Result: &r}
}

// PassagesObservation wraps retrieved passages.
func PassagesObservation(tool ToolName, ps []Passage) ToolObservation {
	return ToolObservation{Tool: tool, Kind: ObservationPassages, Passages: ps}
}

// ErrorObservation wraps a tool failure.
func ErrorObservation(tool ToolName, err error) ToolObservation {
	return ToolObservation{Tool: tool, Kind: ObservationError, Err: err}
}

// Empty reports whether the observation carries no rows or passages.
func (o ToolObservation) Empty() bool {
	switch o.Kind {
	case ObservationRows:
		return o.Result == nil || o.Result.Empty()
	case ObservationPassages:
		return len(o.Passages) == 0
	default:
		return true
	}
}

// HasEvidence reports whether the observation can ground an answer.
func (o ToolObservation) HasEvidence() bool {
	return o.Kind != ObservationError && !o.Empty()
}

// TraceStep is one (thought, tool, input, observation) entry.
type TraceStep struct {
	Index       int
	Thought     string
	Tool        ToolName
	Input       ToolInput
	Observation ToolObservation
}

// ErrTraceFull is returned when appending beyond the step budget.
var ErrTraceFull = errors.New("agent trace is full")

// AgentTrace is the bounded per-question step log. It belongs to exactly one
// request and is dropped once the answer is produced.
type AgentTrace struct {
	steps []TraceStep
	max   int
}

func NewAgentTrace(maxSteps int) *AgentTrace {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &AgentTrace{steps: make([]TraceStep, 0, maxSteps), max: maxSteps}
}

// Append adds a step; it refuses once the budget is reached.
func (t *AgentTrace) Append(step TraceStep) error {
	if len(t.steps) >= t.max {
		return ErrTraceFull
	}
	step.Index = len(t.steps) + 1
	t.steps = append(t.steps, step)
	return nil
}

func (t *AgentTrace) Len() int { return len(t.steps) }

func (t *AgentTrace) Max() int { return t.max }

func (t *AgentTrace) Full() bool { return len(t.steps) >= t.max }

// Steps returns a copy of the recorded steps.
func (t *AgentTrace) Steps() []TraceStep {
	out := make([]TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// HasEvidence reports whether any step produced usable rows or passages.
func (t *AgentTrace) HasEvidence() bool {
	for _, s := range t.steps {
		if s.Observation.HasEvidence() {
			return true
		}
	}
	return false
}

// ToolSequence lists the invoked tools in order.
func (t *AgentTrace) ToolSequence() []ToolName {
	out := make([]ToolName, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.Tool
	}
	return out
}

// QueryPlan is one generated Cypher candidate. It is untrusted until the
// validator accepts it.
type QueryPlan struct {
	Cypher   string
	Question string
	Attempt  int
}
