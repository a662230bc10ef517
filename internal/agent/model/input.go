package model

// Turn is one prior exchange supplied explicitly by the caller.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=8000"`
}

// QueryInput represents one question handed to the engine. It is read-only
// to the engine.
type QueryInput struct {
	RequestID  string `json:"request_id,omitempty" validate:"omitempty,max=128"`
	Question   string `json:"question" validate:"required,max=4000"`
	PriorTurns []Turn `json:"prior_turns,omitempty" validate:"max=20,dive"`
}
