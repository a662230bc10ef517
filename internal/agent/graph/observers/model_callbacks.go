package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// newModelHandler logs around model calls. Message content is only logged
// when verbose is set; otherwise sizes and tool calls only.
func newModelHandler(verbose bool) *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if input == nil {
				return ctx
			}
			ev := logx.Ctx(ctx).Debug().
				Str("component", "model").
				Str("model", info.Name).
				Int("messages", len(input.Messages)).
				Int("tools", len(input.Tools))
			if verbose {
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", um)
				}
			}
			ev.Msg("Model start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil || output.Message == nil {
				return ctx
			}
			calls := make([]string, 0, len(output.Message.ToolCalls))
			for _, tc := range output.Message.ToolCalls {
				calls = append(calls, tc.Function.Name)
			}
			ev := logx.Ctx(ctx).Debug().
				Str("component", "model").
				Str("model", info.Name).
				Strs("tool_calls", calls)
			if output.TokenUsage != nil {
				ev = ev.Int("prompt_tokens", output.TokenUsage.PromptTokens).
					Int("completion_tokens", output.TokenUsage.CompletionTokens)
			}
			if verbose {
				if content := strings.TrimSpace(output.Message.Content); content != "" {
					ev = ev.Str("assistant", content)
				}
			}
			ev.Msg("Model end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Warn().Err(err).Str("component", "model").Str("model", info.Name).Msg("Model call failed")
			return ctx
		},
	}
}

// ModelRun switches ctx to a chat model run named after the model so model
// callbacks fire when a model is called from inside a lambda node.
func ModelRun(ctx context.Context, modelName string) context.Context {
	return einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      modelName,
		Type:      "Gemini",
		Component: components.ComponentOfChatModel,
	})
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
