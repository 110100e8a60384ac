package tools

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/email-assistant-core/server/pkg/logger"
)

type WriteEmailInput struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type WriteEmailOutput struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

func createWriteEmailTool(d Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWriteEmail,
			Desc: "Write and send an email from the user's mailbox. Use it to reply to the sender of a triaged email or to send a new message the user asked for.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"to": {
					Type:     schema.String,
					Desc:     "Recipient email address, optionally with a display name, e.g. Alice Smith <alice.smith@company.com>",
					Required: true,
				},
				"subject": {
					Type:     schema.String,
					Desc:     "Subject line. When replying, reuse the original subject prefixed with Re:",
					Required: true,
				},
				"content": {
					Type:     schema.String,
					Desc:     "Plain text body of the email, including greeting and sign-off",
					Required: true,
				},
			}),
		},
		instrumented(ToolWriteEmail, func(ctx context.Context, in *WriteEmailInput) (*WriteEmailOutput, error) {
			to := strings.TrimSpace(in.To)
			if _, err := mail.ParseAddress(to); err != nil {
				return &WriteEmailOutput{Status: "rejected", Message: fmt.Sprintf("invalid recipient %q: %v", in.To, err)}, nil
			}
			if strings.TrimSpace(in.Content) == "" {
				return &WriteEmailOutput{Status: "rejected", Message: "content is required"}, nil
			}

			id, err := d.Mailer.SendEmail(ctx, to, in.Subject, in.Content)
			if err != nil {
				logx.Error().Err(err).Str("tool", ToolWriteEmail).Msg("send email failed")
				return nil, err
			}
			logx.Info().Str("tool", ToolWriteEmail).Str("message_id", id).Msg("email sent")
			return &WriteEmailOutput{
				Status:    "sent",
				Message:   fmt.Sprintf("Email sent to %s with subject '%s'", to, in.Subject),
				MessageID: id,
			}, nil
		}),
	)
}
