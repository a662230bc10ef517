package model

import errx "github.com/hospital-graph-rag/server/internal/core/error"

const (
	// InsufficientEvidenceAnswer is returned verbatim when no tool produced evidence.
	InsufficientEvidenceAnswer = "I could not find enough information in the hospital records or patient reviews to answer that question."
	// UnableToAnswer is returned verbatim when the engine gives up without evidence.
	UnableToAnswer = "I'm unable to answer that question right now. Please try rephrasing it or ask again later."
)

// RouterState names the states of the tool router.
type RouterState string

const (
	StateThinking         RouterState = "thinking"
	StateActingStructured RouterState = "acting_structured"
	StateActingPassage    RouterState = "acting_passage"
	StateObserving        RouterState = "observing"
	StateFinalizing       RouterState = "finalizing"
	StateFinalized        RouterState = "finalized"
	StateFailed           RouterState = "failed"
)

// Failure is the structured failure object attached to an answer.
type Failure struct {
	Kind    errx.Kind `json:"kind"`
	Message string    `json:"message"`
}

// FinalAnswer is the terminal output of one request.
type FinalAnswer struct {
	RequestID string      `json:"request_id,omitempty"`
	Answer    string      `json:"answer"`
	Grounded  bool        `json:"grounded"`
	Tools     []ToolName  `json:"contributing_tools"`
	State     RouterState `json:"state"`
	Steps     int         `json:"steps"`
	Failure   *Failure    `json:"failure,omitempty"`
}

// Unanswerable builds the fixed fallback answer for an irrecoverable failure.
func Unanswerable(requestID string, kind errx.Kind, message string) *FinalAnswer {
	return &FinalAnswer{
		RequestID: requestID,
		Answer:    UnableToAnswer,
		Grounded:  false,
		Tools:     []ToolName{},
		State:     StateFailed,
		Failure:   &Failure{Kind: kind, Message: message},
	}
}
