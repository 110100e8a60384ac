package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/agent/repo"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect or reset stored conversations",
	}
	cmd.AddCommand(newConversationShowCmd())
	cmd.AddCommand(newConversationClearCmd())
	return cmd
}

// openConversations connects Redis and returns the conversation repository.
func openConversations(cmd *cobra.Command) (*app, *repo.RedisConversationRepository, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}
	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
	}
	a, err := newStores(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, repo.NewRedisConversationRepository(a.rdb, ttl), nil
}

func newConversationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the stored turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, convs, err := openConversations(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := convs.LoadHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
}

func printHistory(w io.Writer, h *model.ConversationHistory) {
	if len(h.Messages) == 0 {
		fmt.Fprintf(w, "Conversation %s is empty\n", h.ConversationID)
		return
	}
	for i, m := range h.Messages {
		fmt.Fprintf(w, "[%d] %s: %s\n", i+1, m.Role, m.Content)
	}
}

func newConversationClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversation-id>",
		Short: "Delete the stored history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, convs, err := openConversations(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			n, err := convs.GetMessageCount(ctx, args[0])
			if err != nil {
				return err
			}
			if err := convs.ClearHistory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d messages from conversation %s\n", n, args[0])
			return nil
		},
	}
}
