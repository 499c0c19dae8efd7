package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/application/services"
	"github.com/taskmaster/tasksync/internal/domain/entities"
)

// NewNotifyCommand creates the notify command
func NewNotifyCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "notify <id>",
		Short: "Send one task to the webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				id, err := resolveID(a, args[0])
				if err != nil {
					return err
				}
				task, err := a.tasks.GetTask(id)
				if err != nil {
					return err
				}
				if a.tasks.Webhook() == "" {
					return entities.ErrWebhookNotConfigured
				}

				if !yes && !confirm(a.input, cmd.OutOrStdout(), services.ConfirmationText(task)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}

				if err := a.tasks.Notify(cmd.Context(), id); err != nil {
					return describeSendError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Notification sent")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "send without asking")
	return cmd
}

// NewNotifyAllCommand creates the notify-all command
func NewNotifyAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-all",
		Short: "Send every incomplete task to the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, acquireAuto, func(a *app) error {
				pending := len(a.tasks.ListTasks(entities.TaskFilterActive))
				if pending == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No incomplete tasks to send")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sending %d tasks...\n", pending)

				result, err := a.tasks.NotifyAllIncomplete(cmd.Context())
				if err != nil {
					return describeSendError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
				return nil
			})
		},
	}
}

// NewRemindCommand creates the remind command
func NewRemindCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send incomplete tasks on the reminder schedule",
		Long:  "Runs until interrupted, sending every incomplete task on reminder.schedule (cron with seconds).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, cmd, acquireAuto, func(a *app) error {
				loc, err := a.cfg.Reminder.Location()
				if err != nil {
					return fmt.Errorf("invalid reminder timezone: %w", err)
				}
				scheduler, err := services.NewReminderScheduler(a.cfg.Reminder.Schedule, loc, a.tasks, a.logger)
				if err != nil {
					return err
				}

				if once {
					result, err := scheduler.RunOnce(ctx)
					if err != nil {
						return describeSendError(err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
					return nil
				}

				scheduler.Start()
				<-ctx.Done()
				scheduler.Stop()
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "send once now and exit")
	return cmd
}

// confirm asks a yes/no question, reading the answer from in.
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func describeSendError(err error) error {
	var statusErr *entities.HTTPStatusError
	switch {
	case errors.Is(err, entities.ErrRelayUnreachable):
		return err
	case errors.As(err, &statusErr):
		return fmt.Errorf("send failed: %w: %s", err, strings.TrimSpace(statusErr.Body))
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("send interrupted: %w", err)
	}
	return fmt.Errorf("send failed: %w", err)
}
