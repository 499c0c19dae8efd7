package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFileCommand creates the file command with subcommands
func NewFileCommand() *cobra.Command {
	fileCmd := &cobra.Command{
		Use:   "file",
		Short: "Manage the task document file",
	}

	fileCmd.AddCommand(&cobra.Command{
		Use:   "select",
		Short: "Choose a different document file and save into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireNever, func(a *app) error {
				a.coordinator.SetAcquirer(newAcquirer(a.cfg, acquirePrompt, a.input, a.interactive, cmd.ErrOrStderr()))
				handle, err := a.tasks.SelectFile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", handle.Path)
				return nil
			})
		},
	})

	fileCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the connected document file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				status := a.tasks.FileStatus(cmd.Context())
				switch {
				case !status.Connected:
					fmt.Fprintln(cmd.OutOrStdout(), "No file connected; tasks are kept in the fallback store only")
				case status.Stale:
					fmt.Fprintf(cmd.OutOrStdout(), "File %s is no longer accessible (%s)\n", status.Name, status.Path)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s (%s)\n", status.Name, status.Path)
				}

				if err := a.db.HealthCheck(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Database %s: %v\n", a.db.Path(), err)
				}
				if err := a.kv.Ping(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Fallback store (%s) unavailable: %v\n", a.cfg.Storage.KVBackend, err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Fallback store: %s\n", a.cfg.Storage.KVBackend)
				}
				return nil
			})
		},
	})

	return fileCmd
}
