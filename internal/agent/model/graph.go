package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - Read and written only inside WithStatePreHandler, WithStatePostHandler
//     or compose.ProcessState; Eino serializes access there.
//   - Persistence goes through MessagesManager, never through this struct.
type AppState struct {
	ConversationID string
	UserID         string
	Input          string           // original incoming message
	Decision       *RoutingDecision // set by the triage router post-handler
	History        []*schema.Message

	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	// Accumulated LLM cost (USD) across model invocations for this message
	TotalCostUSD float64
}
