package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/email-assistant-core/server/pkg/logger"
)

// NewAllCallbacks aggregates the prompt, model, tool and lambda observers into one callbacks.Handler.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Lambda(newLambdaHandler()).
		Handler()
}

// newLambdaHandler reports which lambda node (input conversion, triage,
// assembly) failed a pass.
func newLambdaHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			ev := logx.Warn().Err(err).Str("component", "lambda")
			if info != nil {
				ev = ev.Str("node", info.Name)
			}
			ev.Msg("node error")
			return ctx
		}).
		Build()
}
