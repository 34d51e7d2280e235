// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/core"
	"github.com/vrsandeep/vidl/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app    *core.App
	store  *store.Store
	logger *zap.Logger
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:    app,
		store:  app.Store,
		logger: app.Logger.Named("api"),
	}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/channels", s.handleListChannels)
		r.Post("/channels", s.handleAddChannel)
		r.Delete("/channels/{channelID}", s.handleDeleteChannel)
		r.Post("/channels/{channelID}/refresh", s.handleRefreshChannel)
		r.Get("/channels/{channelID}/videos", s.handleListChannelVideos)

		r.Get("/videos", s.handleListVideos)
		r.Get("/videos/{videoID}", s.handleGetVideo)
		r.Post("/videos/{videoID}/download", s.handleDownloadVideo)
		r.Post("/videos/{videoID}/ignore", s.handleIgnoreVideo)
		r.Post("/videos/{videoID}/unignore", s.handleUnignoreVideo)
		r.Post("/downloads", s.handleDownloadVideos)

		r.Post("/update", s.handleRunUpdate)
		r.Get("/jobs/status", s.handleGetJobsStatus)
	})

	return r
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
