package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/email-assistant-core/server/internal/agent/model"
)

func newFeedbackCmd() *cobra.Command {
	var (
		src      messageSource
		userID   string
		original string
		correct  string
	)

	cmd := &cobra.Command{
		Use:   "feedback [email]",
		Short: "Record a corrected triage decision",
		Long: `Record a corrected triage decision for a user. Stored corrections are
shown to the classifier as examples when similar mail arrives.

  assistant feedback --user u1 --original ignore --correct notify --eml build.eml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := newTriageExample(args, src, original, correct, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			a, err := newStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID == "" {
				userID = model.DefaultUserID
			}
			item, err := a.examples.Save(cmd.Context(), userID, ex)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved example %s for user %s\n", item.ID, userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&src.file, "file", "", "Read the email from a text file")
	cmd.Flags().StringVar(&src.eml, "eml", "", "Read the email from a raw RFC 5322 email file")
	cmd.Flags().StringVar(&userID, "user", "", "User the correction belongs to")
	cmd.Flags().StringVar(&original, "original", "", "Classification the assistant chose (ignore, notify or respond)")
	cmd.Flags().StringVar(&correct, "correct", "", "Classification it should have chosen")
	cmd.MarkFlagsMutuallyExclusive("file", "eml")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("correct")

	return cmd
}

func newTriageExample(args []string, src messageSource, original, correct string, stdin io.Reader) (model.TriageExample, error) {
	orig, err := model.ParseClassification(original)
	if err != nil {
		return model.TriageExample{}, fmt.Errorf("--original: %w", err)
	}
	corr, err := model.ParseClassification(correct)
	if err != nil {
		return model.TriageExample{}, fmt.Errorf("--correct: %w", err)
	}
	email, err := readMessage(args, src, stdin)
	if err != nil {
		return model.TriageExample{}, err
	}
	if email == "" {
		return model.TriageExample{}, fmt.Errorf("email text is empty")
	}
	return model.TriageExample{Email: email, OriginalRouting: orig, CorrectRouting: corr}, nil
}
