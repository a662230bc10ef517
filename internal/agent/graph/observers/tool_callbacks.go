package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

func newToolHandler(verbose bool) *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("component", "tool").Str("tool", info.Name)
			if verbose && input != nil {
				ev = ev.Str("input", input.ArgumentsInJSON)
			}
			ev.Msg("Tool start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("component", "tool").Str("tool", info.Name)
			if verbose && output != nil {
				ev = ev.Str("output", output.Response)
			}
			ev.Msg("Tool end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Warn().Err(err).Str("component", "tool").Str("tool", info.Name).Msg("Tool failed")
			return ctx
		},
	}
}

// ToolStart switches ctx to a tool run so tool callbacks fire for code that
// is not an Eino tools node, then emits the start event.
func ToolStart(ctx context.Context, name, argumentsJSON string) context.Context {
	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      name,
		Type:      "RetrievalTool",
		Component: components.ComponentOfTool,
	})
	return einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: argumentsJSON})
}

// ToolEnd emits the end or error event for a run opened by ToolStart.
func ToolEnd(ctx context.Context, response string, err error) {
	if err != nil {
		einocb.OnError(ctx, err)
		return
	}
	einocb.OnEnd(ctx, &tool.CallbackOutput{Response: response})
}
