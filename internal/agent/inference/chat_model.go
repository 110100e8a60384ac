package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/graph/parsers"
	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
	"github.com/email-assistant-core/server/pkg/metrics"
)

const toolInstruction = "Answer by calling the `%s` tool with arguments that match its schema. " +
	"If you cannot call tools, reply with a single JSON object matching that schema and nothing else."

// ChatModelClient runs structured inference over any Eino tool calling chat model.
type ChatModelClient struct {
	model     einomodel.ToolCallingChatModel
	modelName string
}

func NewChatModelClient(m einomodel.ToolCallingChatModel, modelName string) *ChatModelClient {
	return &ChatModelClient{model: m, modelName: modelName}
}

func (c *ChatModelClient) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.complete(ctx, req)
	metrics.RecordInference(req.Step, err, time.Since(start))
	return raw, err
}

func (c *ChatModelClient) complete(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("inference request without schema")
	}

	bound, err := c.model.WithTools([]*schema.ToolInfo{req.Schema})
	if err != nil {
		return nil, fmt.Errorf("bind %s schema: %w", req.Schema.Name, err)
	}

	out, err := bound.Generate(ctx, withToolInstruction(req.Messages, req.Schema.Name))
	if err != nil {
		logx.Error().Err(err).Str("step", req.Step).Str("model", c.modelName).Msg("inference call failed")
		return nil, errx.WrapInference(err)
	}
	if out == nil {
		return nil, errx.Malformed("empty reply from %s", c.modelName)
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		u := out.ResponseMeta.Usage
		cost := model.MessageCost(out, c.modelName)
		model.AddCost(ctx, cost)
		logx.Debug().
			Str("step", req.Step).
			Str("model", c.modelName).
			Int("prompt_tokens", u.PromptTokens).
			Int("completion_tokens", u.CompletionTokens).
			Float64("cost_usd", cost).
			Msg("inference usage")
	}

	for _, tc := range out.ToolCalls {
		if tc.Function.Name != "" && tc.Function.Name != req.Schema.Name {
			continue
		}
		return parsers.ExtractJSONObject(tc.Function.Arguments)
	}
	return parsers.ExtractJSONObject(out.Content)
}

// withToolInstruction appends the tool instruction to the leading system
// message, or prepends one. The caller's slice is not modified.
func withToolInstruction(msgs []*schema.Message, toolName string) []*schema.Message {
	instruction := fmt.Sprintf(toolInstruction, toolName)
	out := make([]*schema.Message, 0, len(msgs)+1)
	if len(msgs) > 0 && msgs[0] != nil && msgs[0].Role == schema.System {
		out = append(out, schema.SystemMessage(msgs[0].Content+"\n\n"+instruction))
		return append(out, msgs[1:]...)
	}
	out = append(out, schema.SystemMessage(instruction))
	return append(out, msgs...)
}
