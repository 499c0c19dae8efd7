package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/tasksync/internal/infrastructure/server"
)

// shutdownTimeout bounds the graceful shutdown of the relay.
const shutdownTimeout = 10 * time.Second

// NewRelayCommand creates the relay command
func NewRelayCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the local relay that forwards notifications to the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Close()

			if cmd.Flags().Changed("port") {
				cfg.Relay.Port = port
			}

			srv, err := server.New(cfg, nil, appLogger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default relay.port)")
	return cmd
}
