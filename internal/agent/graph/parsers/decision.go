package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// ErrMalformedDecision marks a routing reply that is not exactly one known
// action. The router re-asks once before giving up.
var ErrMalformedDecision = errors.New("malformed routing decision")

type decisionArgs struct {
	Action   string `json:"action"`
	Question string `json:"question"`
	Scope    string `json:"scope"`
	Reason   string `json:"reason"`
	Thought  string `json:"thought"`
}

// ParseDecision turns a routing reply into a discrete decision. Function
// calls are preferred; a bare JSON object in the content is accepted as a
// fallback for models that answer in text.
func ParseDecision(msg *schema.Message) (model.Decision, error) {
	if msg == nil {
		return model.Decision{}, fmt.Errorf("%w: empty reply", ErrMalformedDecision)
	}

	if len(msg.ToolCalls) > 0 {
		return decisionFromToolCalls(msg)
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return model.Decision{}, fmt.Errorf("%w: no function call and no content", ErrMalformedDecision)
	}
	raw, ok := jsonObject(content)
	if !ok {
		return model.Decision{}, fmt.Errorf("%w: reply is neither a function call nor JSON: %s", ErrMalformedDecision, safeSnippet(content))
	}
	var args decisionArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return model.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	action, ok := actionFor(args.Action)
	if !ok {
		return model.Decision{}, fmt.Errorf("%w: unknown action %q", ErrMalformedDecision, args.Action)
	}
	return build(action, args, args.Thought), nil
}

func decisionFromToolCalls(msg *schema.Message) (model.Decision, error) {
	first := msg.ToolCalls[0].Function.Name
	for _, tc := range msg.ToolCalls[1:] {
		if tc.Function.Name != first {
			return model.Decision{}, fmt.Errorf("%w: %d different function calls in one step", ErrMalformedDecision, len(msg.ToolCalls))
		}
	}

	action, ok := actionFor(first)
	if !ok {
		return model.Decision{}, fmt.Errorf("%w: unknown function %q", ErrMalformedDecision, first)
	}

	var args decisionArgs
	if raw := strings.TrimSpace(msg.ToolCalls[0].Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return model.Decision{}, fmt.Errorf("%w: arguments for %s: %v", ErrMalformedDecision, first, err)
		}
	}
	thought := strings.TrimSpace(msg.Content)
	if thought == "" {
		thought = strings.TrimSpace(msg.ReasoningContent)
	}
	return build(action, args, thought), nil
}

func build(action model.Action, args decisionArgs, thought string) model.Decision {
	d := model.Decision{
		Action:  action,
		Thought: strings.TrimSpace(thought),
	}
	if action == model.ActionFinish {
		d.Reason = strings.TrimSpace(args.Reason)
		return d
	}
	d.Input = model.ToolInput{
		Question: strings.TrimSpace(args.Question),
		Scope:    strings.TrimSpace(args.Scope),
	}
	return d
}

func actionFor(name string) (model.Action, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(model.ToolStructured), string(model.ActionStructured):
		return model.ActionStructured, true
	case string(model.ToolPassage), string(model.ActionPassage):
		return model.ActionPassage, true
	case string(model.ToolFinish):
		return model.ActionFinish, true
	default:
		return "", false
	}
}

// jsonObject returns the outermost {...} span of s, after removing code fences.
func jsonObject(s string) (string, bool) {
	s = stripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
