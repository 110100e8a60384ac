package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
)

const defaultMaxHistory = 20

type MessagesManager struct {
	conversationRepo model.ConversationStore
	maxHistory       int
}

func NewMessagesManager(conversationRepo model.ConversationStore, config model.ConversationConfig) *MessagesManager {
	maxHistory := config.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &MessagesManager{
		conversationRepo: conversationRepo,
		maxHistory:       maxHistory,
	}
}

// AppendInstructions stores the routed messages for the response stage.
func (cm *MessagesManager) AppendInstructions(ctx context.Context, conversationID string, msgs []*schema.Message) error {
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if err := cm.conversationRepo.AddMessage(ctx, conversationID, m); err != nil {
			return err
		}
	}
	return nil
}

// BuildResponseContext returns the system prompt followed by the recent
// conversation, oldest first. Only user and assistant turns with text are kept.
func (cm *MessagesManager) BuildResponseContext(ctx context.Context, conversationID string, systemPrompt string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadRecent(ctx, conversationID, cm.maxHistory)
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(history.Messages)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, m := range trimToUserTurn(history.Messages) {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == schema.User || m.Role == schema.Assistant {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	return cm.conversationRepo.AddMessage(ctx, conversationID, schema.AssistantMessage(content, nil))
}

// SaveExchange stores a user message and the assistant answer to it.
func (cm *MessagesManager) SaveExchange(ctx context.Context, conversationID, user, assistant string) error {
	if err := cm.conversationRepo.AddMessage(ctx, conversationID, schema.UserMessage(user)); err != nil {
		return err
	}
	return cm.SaveResponse(ctx, conversationID, assistant)
}

// trimToUserTurn drops leading assistant turns left over from truncation;
// Gemini expects the first content turn to come from the user.
func trimToUserTurn(messages []*schema.Message) []*schema.Message {
	for i, m := range messages {
		if m != nil && m.Role == schema.User {
			return messages[i:]
		}
	}
	return nil
}
