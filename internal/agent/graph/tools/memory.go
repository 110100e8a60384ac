package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
)

const (
	memoryCreate = "create"
	memoryUpdate = "update"
	memoryDelete = "delete"
)

type ManageMemoryInput struct {
	Action  string `json:"action,omitempty"`
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

type ManageMemoryOutput struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

type SearchMemoryInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchMemoryOutput struct {
	Memories []*model.MemoryItem `json:"memories"`
	Total    int                 `json:"total"`
}

func createManageMemoryTool(d Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolManageMemory,
			Desc: "Create, update or delete a persistent memory about contacts, actions, discussions or preferences. Include the id to update or delete an existing memory.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"action": {
					Type: schema.String,
					Desc: "One of create, update, delete (default create)",
					Enum: []string{memoryCreate, memoryUpdate, memoryDelete},
				},
				"content": {
					Type: schema.String,
					Desc: "The information to remember. Required for create and update",
				},
				"id": {
					Type: schema.String,
					Desc: "ID of an existing memory. Required for update and delete",
				},
			}),
		},
		instrumented(ToolManageMemory, func(ctx context.Context, in *ManageMemoryInput) (*ManageMemoryOutput, error) {
			ns := model.CollectionNamespace(model.UserIDFrom(ctx))
			action := strings.ToLower(strings.TrimSpace(in.Action))
			if action == "" {
				action = memoryCreate
			}
			content := strings.TrimSpace(in.Content)
			id := strings.TrimSpace(in.ID)

			switch action {
			case memoryCreate, memoryUpdate:
				if content == "" {
					return &ManageMemoryOutput{Status: "rejected", Message: "content is required"}, nil
				}
				if action == memoryUpdate {
					if id == "" {
						return &ManageMemoryOutput{Status: "rejected", Message: "id is required for update"}, nil
					}
					if _, err := d.Memory.Get(ctx, ns, id); err != nil {
						return notFoundOr(id, err)
					}
				} else {
					id = ""
				}
				item, err := d.Memory.Put(ctx, ns, id, content)
				if err != nil {
					return nil, err
				}
				return &ManageMemoryOutput{Status: action + "d", ID: item.ID}, nil

			case memoryDelete:
				if id == "" {
					return &ManageMemoryOutput{Status: "rejected", Message: "id is required for delete"}, nil
				}
				if err := d.Memory.Delete(ctx, ns, id); err != nil {
					return notFoundOr(id, err)
				}
				return &ManageMemoryOutput{Status: "deleted", ID: id}, nil

			default:
				return &ManageMemoryOutput{Status: "rejected", Message: fmt.Sprintf("unknown action %q", in.Action)}, nil
			}
		}),
	)
}

func createSearchMemoryTool(d Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchMemory,
			Desc: "Search long-term memory for details from previous emails and conversations. Use it before replying to recall context about the sender or topic.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Keywords to search for, e.g. a person's name, project or topic",
					Required: true,
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of memories to return (default 5, max 20)",
				},
			}),
		},
		instrumented(ToolSearchMemory, func(ctx context.Context, in *SearchMemoryInput) (*SearchMemoryOutput, error) {
			limit := in.Limit
			if limit <= 0 {
				limit = d.SearchLimit
			}
			if limit <= 0 {
				limit = defaultSearchLimit
			}
			if limit > maxSearchLimit {
				limit = maxSearchLimit
			}

			items, err := d.Memory.Search(ctx, model.CollectionNamespace(model.UserIDFrom(ctx)), in.Query, limit)
			if err != nil {
				return nil, err
			}
			if items == nil {
				items = []*model.MemoryItem{}
			}
			return &SearchMemoryOutput{Memories: items, Total: len(items)}, nil
		}),
	)
}

func notFoundOr(id string, err error) (*ManageMemoryOutput, error) {
	if errors.Is(err, errx.ErrNotFound) {
		return &ManageMemoryOutput{Status: "not_found", ID: id, Message: "no memory with this id"}, nil
	}
	return nil, err
}
