package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ConversationStore is what a routing pass needs: append turns and read the
// most recent ones back, oldest first.
type ConversationStore interface {
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error
	LoadRecent(ctx context.Context, conversationID string, n int) (*ConversationHistory, error)
}

// ConversationRepository adds the operator-facing reads and resets.
type ConversationRepository interface {
	ConversationStore
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)
	ClearHistory(ctx context.Context, conversationID string) error
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory is a conversation's stored turns, oldest first.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}
