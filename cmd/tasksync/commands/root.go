package commands

import (
	"github.com/spf13/cobra"
)

// configFile is the optional config file given with --config.
var configFile string

// NewRootCommand assembles the tasksync command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tasksync",
		Short: "Local task list with file sync and webhook notifications",
		Long: `tasksync keeps a to-do list in a JSON file of your choice, mirrors it into a
local fallback store, and pushes task notifications to a chat webhook through
a local relay process.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(NewRelayCommand())
	rootCmd.AddCommand(NewAddCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewToggleCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewImportCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewWebhookCommand())
	rootCmd.AddCommand(NewNotifyCommand())
	rootCmd.AddCommand(NewNotifyAllCommand())
	rootCmd.AddCommand(NewRemindCommand())
	rootCmd.AddCommand(NewFileCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
