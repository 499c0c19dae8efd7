package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/ports"
)

// NewAddCommand creates the add command
func NewAddCommand() *cobra.Command {
	var assignee, deadline string

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ports.CreateTaskRequest{
				Text:     strings.Join(args, " "),
				Assignee: assignee,
			}
			if deadline != "" {
				d, err := entities.ParseDate(deadline)
				if err != nil {
					return err
				}
				req.Deadline = &d
			}

			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				task, err := a.tasks.CreateTask(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", shortID(task.ID), task.Text)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "person responsible (defaults to notify.default_assignee)")
	cmd.Flags().StringVarP(&deadline, "deadline", "d", "", "deadline as YYYY-MM-DD")
	return cmd
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := entities.TaskFilter(filter)
			if !f.IsValid() {
				return fmt.Errorf("unknown filter %q (want all, active or completed)", filter)
			}

			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				printTasks(cmd.OutOrStdout(), a.tasks.ListTasks(f), time.Now())
				stats := a.tasks.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d tasks, %d completed\n", stats.Total, stats.Completed)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", string(entities.TaskFilterAll), "all, active or completed")
	return cmd
}

func printTasks(out io.Writer, tasks []entities.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTASK\tASSIGNEE\tDEADLINE")
	for _, t := range tasks {
		status := "[ ]"
		if t.Completed {
			status = "[x]"
		}
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.String()
			if t.IsOverdue(now) {
				deadline += " (overdue)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), status, t.Text, t.Assignee, deadline)
	}
	w.Flush()
}

// NewToggleCommand creates the toggle command
func NewToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task completed or pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				id, err := resolveID(a, args[0])
				if err != nil {
					return err
				}
				task, err := a.tasks.ToggleTask(cmd.Context(), id)
				if err != nil {
					return err
				}
				state := "pending"
				if task.Completed {
					state = "completed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.Text, state)
				return nil
			})
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				id, err := resolveID(a, args[0])
				if err != nil {
					return err
				}
				if err := a.tasks.DeleteTask(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Task deleted")
				return nil
			})
		},
	}
}

// NewImportCommand creates the import command
func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all tasks with an exported file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				n, err := a.tasks.Import(cmd.Context(), data)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Import finished, but no tasks were found")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks\n", n)
				return nil
			})
		},
	}
}

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file|dir]",
		Short: "Export tasks and webhook as JSON",
		Long:  "Export to stdout, to a file, or into a directory as tasks_YYYY-MM-DD.json.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				doc := a.tasks.Export()
				data, err := entities.EncodeDocument(doc)
				if err != nil {
					return err
				}

				if len(args) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}

				path := args[0]
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, entities.ExportFileName(doc.LastSaved.Local()))
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tasks to %s\n", len(doc.Tasks), path)
				return nil
			})
		},
	}
}

// NewWebhookCommand creates the webhook command
func NewWebhookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook [url]",
		Short: "Show or set the webhook url",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				if len(args) == 0 {
					if url := a.tasks.Webhook(); url != "" {
						fmt.Fprintln(cmd.OutOrStdout(), url)
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "No webhook configured")
					}
					return nil
				}
				if err := a.tasks.SetWebhook(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Webhook saved")
				return nil
			})
		},
	}
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(a *app, prefix string) (string, error) {
	var match string
	for _, t := range a.tasks.ListTasks(entities.TaskFilterAll) {
		if t.ID == prefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", entities.ErrTaskNotFound
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
