package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	errx "github.com/email-assistant-core/server/internal/core/error"
)

// Request is one structured inference call: a target schema plus the prompt.
type Request struct {
	// Step labels the call in logs and metrics (detect, extract, classify).
	Step     string
	Schema   *schema.ToolInfo
	Messages []*schema.Message
}

// Client returns a JSON object conforming to Request.Schema, or fails.
type Client interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// Validator is implemented by output types that check their own fields.
type Validator interface {
	Validate() error
}

// Invoke derives the schema of T, calls the client and decodes the reply into T.
func Invoke[T any](ctx context.Context, c Client, step, name, desc string, msgs []*schema.Message) (*T, error) {
	info, err := utils.GoStruct2ToolInfo[T](name, desc)
	if err != nil {
		return nil, fmt.Errorf("derive %s schema: %w", name, err)
	}

	raw, err := c.Complete(ctx, Request{Step: step, Schema: info, Messages: msgs})
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errx.Malformed("decode %s: %v", name, err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
