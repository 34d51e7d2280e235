package downloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/logging"
	"github.com/vrsandeep/vidl/internal/store"
)

// ErrPoolRunning is returned by Start when the pool was already started.
var ErrPoolRunning = errors.New("download pool already running")

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers int
	// Dir is where downloaded files are written.
	Dir string
	// PollInterval is the first idle wait. It doubles up to MaxPollInterval
	// while the queue stays empty.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = c.PollInterval
	}
	return c
}

// EnqueueResult is the outcome of enqueueing one video.
type EnqueueResult struct {
	VideoID       int64  `json:"video_id"`
	Queued        bool   `json:"queued"`
	AlreadyQueued bool   `json:"already_queued"`
	Err           error  `json:"-"`
	Error         string `json:"error,omitempty"`
}

// DrainStats counts what a Drain call processed.
type DrainStats struct {
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Workers    int  `json:"workers"`
	Running    bool `json:"running"`
	Active     int  `json:"active"`
	Downloaded int  `json:"downloaded"`
	Failed     int  `json:"failed"`
}

// Pool drains the download queue with a fixed number of workers. Workers
// claim videos through the store, so several pools (or processes) sharing a
// database never download the same video twice.
type Pool struct {
	store  *store.Store
	dl     Downloader
	logger *zap.Logger
	cfg    PoolConfig

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	active     atomic.Int32
	downloaded atomic.Int64
	failed     atomic.Int64
}

// NewPool creates a stopped pool.
func NewPool(st *store.Store, dl Downloader, logger *zap.Logger, cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		store:  st,
		dl:     dl,
		logger: logging.OrNop(logger).Named("downloader"),
		cfg:    cfg,
		wake:   make(chan struct{}, cfg.Workers),
	}
}

// Reconcile returns videos left in Downloading by an interrupted run to the
// queue. It must only run while no worker of any process is downloading.
func (p *Pool) Reconcile(ctx context.Context) (int, error) {
	n, err := p.store.ResetDownloading(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("Re-queued interrupted downloads", zap.Int("count", n))
	}
	return n, nil
}

// Start reconciles interrupted downloads and launches the workers. They run
// until ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPoolRunning
	}
	if _, err := p.Reconcile(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	for i := 1; i <= p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("Download workers started", zap.Int("workers", p.cfg.Workers), zap.String("dir", p.cfg.Dir))
	return nil
}

// Stop tells the workers to exit and waits for them. A download already in
// progress runs to completion and its outcome is recorded.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Download workers stopped")
}

// Notify wakes one idle worker.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Enqueue queues each video independently and wakes idle workers.
func (p *Pool) Enqueue(ctx context.Context, ids []int64) []EnqueueResult {
	results := make([]EnqueueResult, 0, len(ids))
	for _, id := range ids {
		res := EnqueueResult{VideoID: id}
		outcome, err := p.store.EnqueueVideo(ctx, id)
		switch {
		case err != nil:
			res.Err = err
			res.Error = err.Error()
		case outcome == store.AlreadyQueued:
			res.AlreadyQueued = true
		default:
			res.Queued = true
			p.Notify()
		}
		results = append(results, res)
	}
	return results
}

// Drain processes queued videos with the configured number of workers until
// the queue is empty, then returns. Videos queued while draining are picked
// up too.
func (p *Pool) Drain(ctx context.Context) (DrainStats, error) {
	var (
		wg         sync.WaitGroup
		downloaded atomic.Int64
		failed     atomic.Int64
		errOnce    sync.Once
		firstErr   error
	)
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				worked, ok, err := p.processNext(ctx)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				if !worked {
					return
				}
				if ok {
					downloaded.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	stats := DrainStats{Downloaded: int(downloaded.Load()), Failed: int(failed.Load())}
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return stats, firstErr
}

// Stats reports the pool's counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return PoolStats{
		Workers:    p.cfg.Workers,
		Running:    running,
		Active:     int(p.active.Load()),
		Downloaded: int(p.downloaded.Load()),
		Failed:     int(p.failed.Load()),
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))
	log.Debug("Worker started")

	wait := p.cfg.PollInterval
	for ctx.Err() == nil {
		worked, _, err := p.processNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("Could not claim next video", zap.Error(err))
		}
		if worked {
			wait = p.cfg.PollInterval
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-p.wake:
			timer.Stop()
			wait = p.cfg.PollInterval
		case <-timer.C:
			wait = min(wait*2, p.cfg.MaxPollInterval)
		}
	}
	log.Debug("Worker stopped")
}

// processNext claims and downloads one video. worked is false when the queue
// was empty; ok tells whether the download succeeded.
func (p *Pool) processNext(ctx context.Context) (worked, ok bool, err error) {
	v, err := p.store.ClaimNextQueued(ctx)
	if err != nil || v == nil {
		return false, false, err
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	// The claim is committed; from here the download and its bookkeeping
	// finish even if the pool is being stopped.
	ctx = context.WithoutCancel(ctx)
	log := p.logger.With(zap.Int64("video_id", v.ID), zap.String("remote_id", v.RemoteID))
	log.Info("Downloading video", zap.String("title", v.Title))

	path, dlErr := p.dl.Download(ctx, v, p.cfg.Dir)
	if dlErr != nil {
		p.failed.Add(1)
		log.Warn("Download failed", zap.Error(dlErr))
		if err := p.store.MarkDownloadFailed(ctx, v.ID, dlErr.Error()); err != nil {
			log.Error("Could not record failed download", zap.Error(err))
			return true, false, err
		}
		return true, false, nil
	}

	p.downloaded.Add(1)
	if err := p.store.MarkDownloaded(ctx, v.ID, path); err != nil {
		log.Error("Could not record finished download", zap.Error(err))
		return true, false, err
	}
	log.Info("Download finished", zap.String("file", path))
	return true, true, nil
}
