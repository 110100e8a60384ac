package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/graph/conversations"
	"github.com/email-assistant-core/server/internal/agent/graph/prompts"
	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// Router routes one incoming message.
type Router interface {
	Route(ctx context.Context, in model.RouteInput) (*model.RoutingDecision, error)
}

// AssemblerConfig feeds the agent system prompt.
type AssemblerConfig struct {
	Profile      model.Profile
	Instructions string
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.RouteInput, *model.AppState) (model.RouteInput, error) {
	return func(ctx context.Context, in model.RouteInput, s *model.AppState) (model.RouteInput, error) {
		s.ConversationID = in.ConversationID
		s.UserID = in.UserID
		s.Input = in.Message
		s.Decision = nil
		s.History = nil
		// Reset tool call counter and limit flag for each new message
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode rejects blank messages before any model is called.
func NewInputConverterNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.RouteInput) (model.RouteInput, error) {
		if strings.TrimSpace(in.Message) == "" {
			return model.RouteInput{}, errx.ErrEmptyMessage
		}
		if in.UserID == "" {
			in.UserID = model.DefaultUserID
		}
		return in, nil
	})
}

func NewTriageRouterNode(r Router) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.RouteInput) (*model.RoutingDecision, error) {
		d, err := r.Route(ctx, in)
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("Triage failed")
			return nil, err
		}
		return d, nil
	})
}

// NewTriageRouterPostHandler stores the decision in state.
func NewTriageRouterPostHandler() func(context.Context, *model.RoutingDecision, *model.AppState) (*model.RoutingDecision, error) {
	return func(ctx context.Context, out *model.RoutingDecision, state *model.AppState) (*model.RoutingDecision, error) {
		if out == nil {
			return nil, fmt.Errorf("router returned no decision")
		}
		state.Decision = out
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("user_id", state.UserID).
			Str("stage", string(out.Next)).
			Str("classification", out.Classification().String()).
			Msg("Routing decision stored")
		return out, nil
	}
}

// NewTriageCondition sends a decision to the response stage or to TriageEnd.
func NewTriageCondition() func(context.Context, *model.RoutingDecision) (string, error) {
	return func(ctx context.Context, d *model.RoutingDecision) (string, error) {
		switch d.Next {
		case model.StageRespond:
			return NodeResponseAssembler, nil
		case model.StageEnd:
			return NodeTriageEnd, nil
		default:
			return "", fmt.Errorf("unexpected routing stage %q", d.Next)
		}
	}
}

// NewTriageEndNode closes a pass that needs no response stage. The original
// message and a short verdict summary are kept in the conversation.
func NewTriageEndNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, d *model.RoutingDecision) (*schema.Message, error) {
		var conversationID, input string
		var out *schema.Message
		summary := "No action taken."
		if d.Verdict != nil {
			summary = d.Verdict.Summary(d.Email)
		}
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			input = state.Input
			out = schema.AssistantMessage(summary, nil)
			annotate(out, state)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := mm.SaveExchange(ctx, conversationID, input, summary); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Error saving triage summary")
			return nil, err
		}
		logx.Info().
			Str("conversation_id", conversationID).
			Str("classification", d.Classification().String()).
			Msg("Pass ended after triage")
		return out, nil
	})
}

// NewResponseAssemblerNode stores the routed instruction and builds the
// response model context from the conversation.
func NewResponseAssemblerNode(mm *conversations.MessagesManager, cfg AssemblerConfig) *compose.Lambda {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return compose.InvokableLambda(func(ctx context.Context, d *model.RoutingDecision) ([]*schema.Message, error) {
		var conversationID string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			conversationID = state.ConversationID
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := mm.AppendInstructions(ctx, conversationID, d.Messages); err != nil {
			return nil, fmt.Errorf("store routed instruction: %w", err)
		}

		systemPrompt, err := prompts.RenderAgentSystem(ctx, cfg.Profile, cfg.Instructions, now())
		if err != nil {
			return nil, fmt.Errorf("render agent system prompt: %w", err)
		}

		messages, err := mm.BuildResponseContext(ctx, conversationID, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build response context: %w", err)
		}
		return messages, nil
	})
}

// NewResponseChatModelPreHandler creates the pre-handler for ResponseChatModel node
func NewResponseChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Tool results must carry the id of the call they answer.
		for _, m := range in {
			if m == nil || m.Role != schema.Tool || strings.TrimSpace(m.ToolCallID) != "" {
				continue
			}
			if id := lastToolCallID(state.History, m.ToolName); id != "" {
				m.ToolCallID = id
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Do not call any more tools. Tell the user what you have done so far "+
						"and what still needs their attention.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		logx.Debug().Str("conversation_id", state.ConversationID).Int("messages", len(state.History)).Msg("AI thinking...")

		return state.History, nil
	}
}

func lastToolCallID(history []*schema.Message, toolName string) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if toolName == "" || tc.Function.Name == toolName {
				return tc.ID
			}
		}
		return msg.ToolCalls[0].ID
	}
	return ""
}

// NewResponseChatModelPostHandler creates the post-handler for ResponseChatModel node
func NewResponseChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("response model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[ExtraUsageCost] = map[string]any{
				"currency":          "USD",
				"model":             modelName,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			logx.Debug().
				Str("conversation_id", state.ConversationID).
				Str("node", NodeResponseChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			state.TotalCostUSD += totalC
			model.AddCost(ctx, totalC)
		}

		// Some providers omit tool call IDs.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)
		annotate(out, state)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}

		// Save only the final assistant message, or the last one once the tool limit is hit.
		if out.Role == schema.Assistant && (len(out.ToolCalls) == 0 || state.ToolCallLimitReached) && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewToolExecutorCondition creates the condition function for tool execution routing
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})
		if err != nil {
			logx.Warn().Err(err).Msg("Tool limit state unavailable - routing on tool calls only")
		}

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}

		return compose.END, nil
	}
}

// NewToolExecutorPreHandler creates the pre-handler for ToolExecutor node
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("conversation_id", state.ConversationID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}
