// Package cli implements the vidl command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/config"
	"github.com/vrsandeep/vidl/internal/core"
	"github.com/vrsandeep/vidl/internal/logging"
)

// runner carries what every command needs: configuration, a logger and a way
// to open the application.
type runner struct {
	version    string
	verbosity  int
	appOptions []core.Option

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the vidl command tree. opts replace application
// components, which tests use to avoid network access.
func NewRootCmd(version string, opts ...core.Option) *cobra.Command {
	r := &runner{version: version, appOptions: opts}

	root := &cobra.Command{
		Use:           "vidl",
		Short:         "Track video channels and download their videos",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env if present; real environment variables win.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			r.cfg = cfg
			r.logger = logging.NewConsole(logging.LevelForVerbosity(r.verbosity))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if r.logger != nil {
				_ = r.logger.Sync()
			}
		},
	}
	root.PersistentFlags().CountVarP(&r.verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(
		r.initCmd(),
		r.migrateCmd(),
		r.addCmd(),
		r.removeCmd(),
		r.refreshCmd(),
		r.listCmd(),
		r.updateCmd(),
		r.downloadCmd(),
		r.statusCmd("ignore", "Ignore videos so they are never downloaded"),
		r.statusCmd("unignore", "Return ignored videos to new"),
		r.workerCmd(),
		r.webCmd(),
		r.backupCmd(),
	)
	return root
}

// openApp opens the database, creating and migrating it if needed, and wires the
// application with the given logger.
func (r *runner) openApp(logger *zap.Logger) (*core.App, error) {
	if err := os.MkdirAll(filepath.Dir(r.cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	app, err := core.New(r.cfg, logger, r.appOptions...)
	if err != nil {
		return nil, err
	}
	app.Version = r.version
	return app, nil
}
