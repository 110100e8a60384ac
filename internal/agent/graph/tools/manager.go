package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/pkg/metrics"
)

const (
	ToolWriteEmail        = "write_email"
	ToolScheduleMeeting   = "schedule_meeting"
	ToolCheckAvailability = "check_calendar_availability"
	ToolManageMemory      = "manage_memory"
	ToolSearchMemory      = "search_memory"
)

const (
	defaultMeetingMinutes = 30
	maxMeetingMinutes     = 8 * 60
	defaultSearchLimit    = 5
	maxSearchLimit        = 20
)

// Deps are the collaborators the assistant tools act on.
type Deps struct {
	Mailer      model.Mailer
	Calendar    model.Calendar
	Memory      model.MemoryStore
	SearchLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// GetAssistantTools returns the response agent's tools. Calendar and memory
// tools are omitted when their collaborator is nil.
func GetAssistantTools(d Deps) []tool.BaseTool {
	var out []tool.BaseTool
	if d.Mailer != nil {
		out = append(out, createWriteEmailTool(d))
	}
	if d.Calendar != nil {
		out = append(out, createScheduleMeetingTool(d), createCheckAvailabilityTool(d))
	}
	if d.Memory != nil {
		out = append(out, createManageMemoryTool(d), createSearchMemoryTool(d))
	}
	return out
}

// GetToolInfos collects tool schemas for binding to a chat model.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// instrumented records the outcome of every call of fn.
func instrumented[T, D any](name string, fn func(context.Context, T) (D, error)) func(context.Context, T) (D, error) {
	return func(ctx context.Context, in T) (D, error) {
		out, err := fn(ctx, in)
		metrics.RecordToolCall(name, err)
		return out, err
	}
}
