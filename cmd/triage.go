package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/mailtext"
)

type messageSource struct {
	file string
	eml  string
}

func newTriageCmd() *cobra.Command {
	var (
		src            messageSource
		conversationID string
		userID         string
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "triage [message]",
		Short: "Triage one message and run the assistant on it",
		Long: `Triage one message and run the assistant on it.

The message is taken from the first argument, from --file, from --eml (an
RFC 5322 file such as a saved .eml) or from stdin, in that order. Input that
looks like a raw email is normalised to headers plus plain text first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readMessage(args, src, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.runner.Invoke(ctx, model.RouteInput{
				ConversationID: conversationID,
				UserID:         userID,
				Message:        message,
			})
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), reply, asJSON)
		},
	}

	cmd.Flags().StringVar(&src.file, "file", "", "Read the message from a text file")
	cmd.Flags().StringVar(&src.eml, "eml", "", "Read the message from a raw RFC 5322 email file")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation ID to continue (a new one is generated when empty)")
	cmd.Flags().StringVar(&userID, "user", "", "User whose memory and triage examples are used")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reply as JSON")
	cmd.MarkFlagsMutuallyExclusive("file", "eml")

	return cmd
}

// readMessage resolves the message text from args, files or stdin.
func readMessage(args []string, src messageSource, stdin io.Reader) (string, error) {
	var text string
	switch {
	case len(args) > 0:
		text = args[0]
	case src.eml != "":
		raw, err := os.ReadFile(src.eml)
		if err != nil {
			return "", fmt.Errorf("read eml: %w", err)
		}
		return mailtext.Normalize(raw)
	case src.file != "":
		b, err := os.ReadFile(src.file)
		if err != nil {
			return "", fmt.Errorf("read message file: %w", err)
		}
		text = string(b)
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	}

	text = strings.TrimSpace(text)
	if mailtext.LooksLikeRFC822(text) {
		return mailtext.Normalize([]byte(text))
	}
	return text, nil
}

func printReply(w io.Writer, reply *model.Reply, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	fmt.Fprintf(w, "conversation: %s\n", reply.ConversationID)
	if reply.Classification != "" {
		fmt.Fprintf(w, "classification: %s\n", reply.Classification)
	}
	fmt.Fprintf(w, "next: %s\ncost: $%.6f\n\n%s\n", reply.Next, reply.TotalCostUSD, reply.Content)
	return nil
}
