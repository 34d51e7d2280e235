// Package updater crawls tracked channels and records newly published videos.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
	"github.com/vrsandeep/vidl/internal/store"
)

// Skip reasons reported for channels that were not crawled.
const (
	SkipFresh      = "checked recently"
	SkipInProgress = "update already in progress"
	SkipDeleted    = "channel removed during update"
)

// Config tunes an Engine.
type Config struct {
	// Freshness skips channels checked more recently than this, unless forced.
	Freshness time.Duration
	// ChannelTimeout bounds the crawl of a single channel.
	ChannelTimeout time.Duration
}

// Selector chooses the channels of a run. An empty Query selects all
// channels; otherwise it is a channel ID or a substring of the title or
// remote ID.
type Selector struct {
	Query string
}

// Options changes how channels are crawled.
type Options struct {
	// Force crawls channels even when they were checked recently.
	Force bool
	// Full reads every page instead of stopping at the first known video,
	// and corrects titles and descriptions that changed remotely.
	Full bool
}

// ChannelResult is the outcome of one channel in a run.
type ChannelResult struct {
	ChannelID  int64          `json:"channel_id"`
	Service    models.Service `json:"service"`
	Title      string         `json:"title"`
	NewVideos  int            `json:"new_videos"`
	Corrected  int            `json:"corrected"`
	Pages      int            `json:"pages"`
	Skipped    bool           `json:"skipped"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Err        error          `json:"-"`
	Error      string         `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Channels   []ChannelResult `json:"channels"`
}

// NewVideos is the number of videos added across all channels.
func (r *Report) NewVideos() int {
	n := 0
	for _, c := range r.Channels {
		n += c.NewVideos
	}
	return n
}

// Failed returns the channels whose crawl failed.
func (r *Report) Failed() []ChannelResult {
	var out []ChannelResult
	for _, c := range r.Channels {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Engine runs channel updates against the store.
type Engine struct {
	store   *store.Store
	sources *source.Registry
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time
}

// New creates an Engine. A nil logger discards output.
func New(st *store.Store, sources *source.Registry, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 2 * time.Minute
	}
	return &Engine{store: st, sources: sources, logger: logger, cfg: cfg, now: time.Now}
}

// storeFailure marks errors of the local store, which abort a run, as
// opposed to remote failures, which only fail one channel.
type storeFailure struct{ error }

func (e storeFailure) Unwrap() error { return e.error }

// Update crawls the selected channels. Remote failures are recorded per
// channel and do not stop the run. A store failure or cancellation of ctx
// stops the run and is returned together with the partial report.
func (e *Engine) Update(ctx context.Context, sel Selector, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: e.now().UTC()}
	log := e.logger.With(zap.String("run_id", report.RunID))

	channels, err := e.store.FindChannels(ctx, sel.Query)
	if err != nil {
		return report, fmt.Errorf("failed to list channels: %w", err)
	}
	log.Info("Starting channel update", zap.Int("channels", len(channels)),
		zap.Bool("force", opts.Force), zap.Bool("full", opts.Full))

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = e.now().UTC()
			return report, err
		}
		result, err := e.updateChannel(ctx, ch, opts)
		if result.Err != nil {
			result.Error = result.Err.Error()
			log.Warn("Channel update failed", zap.Int64("channel_id", ch.ID), zap.String("title", ch.Title), zap.Error(result.Err))
		} else if !result.Skipped {
			log.Info("Channel updated", zap.Int64("channel_id", ch.ID), zap.String("title", ch.Title),
				zap.Int("new_videos", result.NewVideos), zap.Int("pages", result.Pages))
		}
		report.Channels = append(report.Channels, result)
		if err != nil {
			report.FinishedAt = e.now().UTC()
			return report, err
		}
	}

	report.FinishedAt = e.now().UTC()
	log.Info("Channel update finished", zap.Int("new_videos", report.NewVideos()), zap.Int("failed", len(report.Failed())))
	return report, nil
}

func (e *Engine) updateChannel(ctx context.Context, ch *models.Channel, opts Options) (ChannelResult, error) {
	result := ChannelResult{ChannelID: ch.ID, Service: ch.Service, Title: ch.Title}

	if !opts.Force && ch.LastCheckedAt != nil && e.now().Sub(*ch.LastCheckedAt) < e.cfg.Freshness {
		result.Skipped, result.SkipReason = true, SkipFresh
		return result, nil
	}

	client, ok := e.sources.Get(ch.Service)
	if !ok {
		result.Err = fmt.Errorf("no client for service %q", ch.Service)
		return result, nil
	}

	acquired, err := e.store.TryBeginChannelUpdate(ctx, ch.ID, 2*e.cfg.ChannelTimeout)
	if errors.Is(err, store.ErrNotFound) {
		result.Skipped, result.SkipReason = true, SkipDeleted
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("channel %d: %w", ch.ID, err)
	}
	if !acquired {
		result.Skipped, result.SkipReason = true, SkipInProgress
		return result, nil
	}

	crawlCtx, cancel := context.WithTimeout(ctx, e.cfg.ChannelTimeout)
	crawl, pages, err := e.crawl(crawlCtx, client, ch, opts.Full)
	timedOut := errors.Is(crawlCtx.Err(), context.DeadlineExceeded)
	cancel()
	result.Pages = pages

	if err != nil {
		e.release(ctx, ch.ID)
		var sf storeFailure
		switch {
		case errors.As(err, &sf):
			return result, fmt.Errorf("channel %d: %w", ch.ID, sf.error)
		case ctx.Err() != nil:
			return result, ctx.Err()
		case timedOut && !errors.Is(err, source.ErrTransport):
			err = &source.FetchError{Service: ch.Service, Channel: ch.RemoteID,
				Err: fmt.Errorf("%w: timed out after %s", source.ErrTransport, e.cfg.ChannelTimeout)}
		}
		result.Err = err
		return result, nil
	}

	inserted, err := e.store.CommitChannelCrawl(ctx, crawl)
	if errors.Is(err, store.ErrNotFound) {
		result.Skipped, result.SkipReason = true, SkipDeleted
		return result, nil
	}
	if err != nil {
		e.release(ctx, ch.ID)
		return result, fmt.Errorf("channel %d: %w", ch.ID, err)
	}
	result.NewVideos = inserted
	result.Corrected = len(crawl.Corrections)
	return result, nil
}

// release drops the update guard even when ctx is already cancelled.
func (e *Engine) release(ctx context.Context, channelID int64) {
	if err := e.store.EndChannelUpdate(context.WithoutCancel(ctx), channelID); err != nil {
		e.logger.Error("Failed to release channel update guard", zap.Int64("channel_id", channelID), zap.Error(err))
	}
}

// crawl pages through a channel newest first and collects unknown videos.
// Without full it stops at the first video that is already stored.
func (e *Engine) crawl(ctx context.Context, client source.Client, ch *models.Channel, full bool) (store.ChannelCrawl, int, error) {
	crawl := store.ChannelCrawl{ChannelID: ch.ID}
	seen := make(map[string]bool)
	pages := 0
	cursor := ""

	for {
		page, err := client.FetchPage(ctx, ch.RemoteID, cursor)
		if err != nil {
			return crawl, pages, err
		}
		pages++

		ids := make([]string, 0, len(page.Videos))
		for _, v := range page.Videos {
			ids = append(ids, v.RemoteID)
		}
		known, err := e.store.KnownVideos(ctx, ch.ID, ids)
		if err != nil {
			if ctx.Err() != nil {
				return crawl, pages, ctx.Err()
			}
			return crawl, pages, storeFailure{err}
		}

		boundary := false
		for _, v := range page.Videos {
			if v.RemoteID == "" || seen[v.RemoteID] {
				continue
			}
			seen[v.RemoteID] = true
			if crawl.LastSeenVideoID == "" {
				crawl.LastSeenVideoID = v.RemoteID
			}
			existing, ok := known[v.RemoteID]
			if !ok {
				crawl.NewVideos = append(crawl.NewVideos, v)
				continue
			}
			if !full {
				boundary = true
				break
			}
			if v.Title != "" && (existing.Title != v.Title || existing.Description != v.Description) {
				crawl.Corrections = append(crawl.Corrections, store.Correction{
					VideoID: existing.ID, Title: v.Title, Description: v.Description,
				})
			}
		}

		if boundary || page.NextCursor == "" || len(page.Videos) == 0 || page.NextCursor == cursor {
			return crawl, pages, nil
		}
		cursor = page.NextCursor
	}
}

// AddChannel resolves name on service and starts tracking the channel. It
// returns store.ErrDuplicate if the channel is already tracked.
func (e *Engine) AddChannel(ctx context.Context, service models.Service, name string) (*models.Channel, error) {
	client, ok := e.sources.Get(service)
	if !ok {
		return nil, fmt.Errorf("no client for service %q", service)
	}
	remoteID, err := client.ResolveChannel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %q: %w", name, err)
	}
	if _, err := e.store.GetChannelByRemoteID(ctx, service, remoteID); err == nil {
		return nil, fmt.Errorf("channel %s/%s: %w", service, remoteID, store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	meta, err := client.ChannelMetadata(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel metadata: %w", err)
	}
	ch, err := e.store.CreateChannel(ctx, service, remoteID, meta.Title, meta.Thumbnail)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Channel added", zap.Int64("channel_id", ch.ID), zap.String("service", string(service)),
		zap.String("remote_id", remoteID), zap.String("title", ch.Title))
	return ch, nil
}

// RefreshChannel re-reads the title and thumbnail of a channel.
func (e *Engine) RefreshChannel(ctx context.Context, id int64) (*models.Channel, error) {
	ch, err := e.store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	client, ok := e.sources.Get(ch.Service)
	if !ok {
		return nil, fmt.Errorf("no client for service %q", ch.Service)
	}
	meta, err := client.ChannelMetadata(ctx, ch.RemoteID)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateChannelMetadata(ctx, id, meta.Title, meta.Thumbnail); err != nil {
		return nil, err
	}
	return e.store.GetChannel(ctx, id)
}
