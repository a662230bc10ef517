package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the prompt, model and tool handlers into one
// callbacks.Handler for a graph invocation.
func NewAllCallbacks(verbose bool) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(verbose)).
		ChatModel(newModelHandler(verbose)).
		Prompt(newPromptHandler(verbose)).
		Handler()
}
