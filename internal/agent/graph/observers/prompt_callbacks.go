package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// newPromptHandler logs prompt rendering. Rendered text is only logged when
// verbose is set.
func newPromptHandler(verbose bool) *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			ev := logx.Ctx(ctx).Debug().
				Str("component", "prompt").
				Str("name", info.Name).
				Int("messages", len(output.Result))
			if verbose && len(output.Result) > 0 && output.Result[0] != nil {
				ev = ev.Str("system", output.Result[0].Content)
			}
			ev.Msg("Prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Error().Err(err).Str("component", "prompt").Str("name", info.Name).Msg("Prompt render failed")
			return ctx
		},
	}
}
