package model

// AppState stores per-invocation state for the router graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState, so every
//     Invoke gets a fresh value; nothing is shared across questions.
//   - Reads and writes happen only inside state handlers or
//     compose.ProcessState, which serialise access. Nodes copy what they need
//     out of the state and release it before calling a model or a store.
type AppState struct {
	RequestID string
	Input     QueryInput
	Trace     *AgentTrace
	State     RouterState

	ToolFailures map[ToolName]int // consecutive failures per tool
	Failure      *Failure         // set when routing is abandoned
}

// StepSignal travels around the think/act loop. The act nodes fill in the
// observation; the observing post-handler moves it into the trace.
type StepSignal struct {
	Decision    Decision
	Observation *ToolObservation
}

// TraceSnapshot is the copy of state a Thinking step works from.
type TraceSnapshot struct {
	Input QueryInput
	Steps []TraceStep
	Max   int
}
