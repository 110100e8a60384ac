package nodes

import (
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
)

const (
	NodeInputConverter    = "InputConverter"
	NodeTriageRouter      = "TriageRouter"
	NodeTriageEnd         = "TriageEnd"
	NodeResponseAssembler = "ResponseAssembler"
	NodeResponseChatModel = "ResponseChatModel"
	NodeToolExecutor      = "ToolExecutor"
)

// Keys set on the final message Extra so the runner can build a Reply.
const (
	ExtraClassification = "classification"
	ExtraNext           = "next"
	ExtraUsageCost      = "usage_cost"
	ExtraUsageCostTotal = "usage_cost_total_usd"
)

const DefaultMaxToolCalls = 10

// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit evaluates whether another tool call would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkToolLimit(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck counts one tool round and marks the state when
// the limit is exceeded.
func incrementToolCallAndCheck(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount++
	if state.ToolCallCount > max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// annotate copies the routing outcome onto a message Extra.
func annotate(msg *schema.Message, state *model.AppState) {
	if msg == nil {
		return
	}
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	if state.Decision != nil {
		msg.Extra[ExtraNext] = string(state.Decision.Next)
		if c := state.Decision.Classification(); c != "" {
			msg.Extra[ExtraClassification] = c.String()
		}
	}
	msg.Extra[ExtraUsageCostTotal] = state.TotalCostUSD
}
