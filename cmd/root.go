package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

// rootCmd represents the base command for the assistant
var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Triages incoming email and answers on your behalf",
	Long: `assistant reads an incoming message, decides whether it carries an email,
classifies that email as ignore, notify or respond, and hands actionable
mail to a tool-using agent that can reply, schedule meetings and remember
things about your contacts.

It can run as:
  - A one-shot CLI (triage)
  - An HTTP service (serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "assistant version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before reading the environment")

	rootCmd.AddCommand(newTriageCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newFeedbackCmd())
	rootCmd.AddCommand(newConversationCmd())
	rootCmd.AddCommand(newVersionCmd())
}
