package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/config"
	"github.com/vrsandeep/vidl/internal/db"
	"github.com/vrsandeep/vidl/internal/downloader"
	"github.com/vrsandeep/vidl/internal/jobs"
	"github.com/vrsandeep/vidl/internal/logging"
	"github.com/vrsandeep/vidl/internal/source"
	"github.com/vrsandeep/vidl/internal/source/invidious"
	"github.com/vrsandeep/vidl/internal/source/vimeo"
	"github.com/vrsandeep/vidl/internal/source/ytpage"
	"github.com/vrsandeep/vidl/internal/store"
	"github.com/vrsandeep/vidl/internal/updater"
	"github.com/vrsandeep/vidl/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Logger  *zap.Logger
	Store   *store.Store
	Sources *source.Registry
	Engine  *updater.Engine
	Pool    *downloader.Pool
	Jobs    *jobs.JobManager
	Version string

	scheduler *gocron.Scheduler
}

// Option overrides a component when building an App.
type Option func(*options)

type options struct {
	sources    *source.Registry
	downloader downloader.Downloader
}

// WithSources replaces the remote metadata clients.
func WithSources(r *source.Registry) Option {
	return func(o *options) { o.sources = r }
}

// WithDownloader replaces the yt-dlp downloader.
func WithDownloader(d downloader.Downloader) Option {
	return func(o *options) { o.downloader = d }
}

// New opens the database, applies migrations and wires every component.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	logger = logging.OrNop(logger)

	database, err := db.InitDB(cfg.Database.Path, cfg.BusyTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// We can't proceed without a valid database schema.
	if err := db.RunMigrations(database, migrations.FS, logger); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.Debug("Core application setup complete.", zap.String("database", cfg.Database.Path))
	return Build(cfg, database, logger, opts...), nil
}

// Build wires the components around an already migrated database.
func Build(cfg *config.Config, database *sql.DB, logger *zap.Logger, opts ...Option) *App {
	logger = logging.OrNop(logger)
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sources == nil {
		o.sources = DefaultSources(cfg)
	}
	if o.downloader == nil {
		o.downloader = downloader.NewYtDlp(cfg.Download.YtdlpPath, cfg.Download.ExtraArgs)
	}

	st := store.New(database, store.WithBusyTimeout(cfg.BusyTimeout()))
	engine := updater.New(st, o.sources, logger.Named("updater"), updater.Config{
		Freshness:      cfg.FreshnessWindow(),
		ChannelTimeout: cfg.ChannelTimeout(),
	})
	poll, maxPoll := cfg.PollInterval()
	pool := downloader.NewPool(st, o.downloader, logger, downloader.PoolConfig{
		Workers:         cfg.Download.Workers,
		Dir:             cfg.Download.Dir,
		PollInterval:    poll,
		MaxPollInterval: maxPoll,
	})
	jm := jobs.NewManager(logger)
	jobs.RegisterUpdateJob(jm, engine)

	return &App{
		Config:  cfg,
		DB:      database,
		Logger:  logger,
		Store:   st,
		Sources: o.sources,
		Engine:  engine,
		Pool:    pool,
		Jobs:    jm,
	}
}

// DefaultSources builds the remote clients from configuration: YouTube via
// Invidious with the channel page as a fallback resolver, and Vimeo.
func DefaultSources(cfg *config.Config) *source.Registry {
	timeout := cfg.RequestTimeout()
	yt := invidious.New(cfg.Remote.InvidiousURL, timeout,
		invidious.WithFallback(ytpage.New(ytpage.DefaultBaseURL, timeout)))
	vm := vimeo.New(vimeo.DefaultBaseURL, cfg.Remote.VimeoToken, timeout)
	return source.NewRegistry(yt, vm)
}

// StartBackground launches the download workers and the update scheduler.
func (a *App) StartBackground(ctx context.Context) error {
	if err := a.Pool.Start(ctx); err != nil {
		return err
	}
	interval := time.Duration(a.Config.Update.IntervalMinutes) * time.Minute
	s, err := jobs.StartScheduler(a.Jobs, interval, a.Logger)
	if err != nil {
		a.Pool.Stop()
		return err
	}
	a.scheduler = s
	return nil
}

// StopBackground stops the scheduler, cancels running jobs and waits for
// in-flight downloads to finish.
func (a *App) StopBackground() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	a.Jobs.Shutdown()
	a.Pool.Stop()
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Logger.Sync()
}
