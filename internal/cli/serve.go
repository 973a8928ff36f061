package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/api"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, metrics and websocket stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			stopSession, err := startSession(ctx, deps.App)
			if err != nil {
				return err
			}
			defer stopSession()

			server := api.NewServer(port, deps.App)
			if err := server.Start(); err != nil {
				return err
			}

			streamCtx, stopStream := context.WithCancel(ctx)
			defer stopStream()
			go server.StreamSession(streamCtx)

			<-ctx.Done()
			slog.Warn("Interrupt received, shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error stopping API server", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", deps.Config.APIPort, "HTTP port")

	return cmd
}
