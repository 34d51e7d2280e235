package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/api"
	"github.com/vrsandeep/vidl/internal/logging"
)

func (r *runner) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Download queued videos until the queue is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Pool.Reconcile(ctx); err != nil {
				return err
			}
			stats, err := app.Pool.Drain(ctx)
			out := cmd.OutOrStdout()
			if stats.Downloaded+stats.Failed == 0 && err == nil {
				fmt.Fprintln(out, "Download queue is empty, nothing to do")
				return nil
			}
			fmt.Fprintf(out, "Downloaded %d videos, %d failed\n", stats.Downloaded, stats.Failed)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d downloads failed", stats.Failed)
			}
			return nil
		},
	}
}

func (r *runner) webCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve the JSON API with download workers and scheduled updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Long-running processes log JSON.
			logger := logging.New(logging.LevelForVerbosity(r.verbosity + 1))
			app, err := r.openApp(logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.StartBackground(ctx); err != nil {
				return err
			}
			defer app.StopBackground()

			logger.Info("vidl started", zap.String("version", r.version), zap.String("addr", r.cfg.Addr()))
			return api.NewServer(app).ListenAndServe(ctx, r.cfg.Addr())
		},
	}
}
