package downloader_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/vidl/internal/downloader"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/store"
	"github.com/vrsandeep/vidl/internal/testutil"
)

// fakeDownloader records every call and fails for the configured videos.
type fakeDownloader struct {
	mu      sync.Mutex
	calls   map[int64]int
	fail    map[int64]error
	delay   time.Duration
	started chan int64
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{calls: map[int64]int{}, fail: map[int64]error{}}
}

func (f *fakeDownloader) Download(ctx context.Context, v *models.Video, dir string) (string, error) {
	f.mu.Lock()
	f.calls[v.ID]++
	err := f.fail[v.ID]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- v.ID
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, downloader.TargetName(v)+".mp4"), nil
}

func (f *fakeDownloader) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeDownloader) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func newPool(st *store.Store, dl downloader.Downloader, workers int) *downloader.Pool {
	return downloader.NewPool(st, dl, nil, downloader.PoolConfig{
		Workers:         workers,
		Dir:             "/downloads",
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 50 * time.Millisecond,
	})
}

func ids(videos []*models.Video) []int64 {
	out := make([]int64, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.ID)
	}
	return out
}

func TestDrainDownloadsEachVideoOnce(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCdrain", 20)

	dl := newFakeDownloader()
	dl.delay = 2 * time.Millisecond
	pool := newPool(st, dl, 4)

	for _, res := range pool.Enqueue(ctx, ids(videos)) {
		require.NoError(t, res.Err)
		assert.True(t, res.Queued)
	}

	stats, err := pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Downloaded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 20, dl.totalCalls())

	for _, v := range videos {
		assert.Equal(t, 1, dl.callCount(v.ID), "video %d downloaded more than once", v.ID)
		got, err := st.GetVideo(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDownloaded, got.Status)
		assert.NotNil(t, got.DownloadedAt)
		assert.Equal(t, filepath.Join("/downloads", downloader.TargetName(v)+".mp4"), got.LocalFile)
	}
}

func TestConcurrentPoolsShareQueue(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCshare", 15)

	dl := newFakeDownloader()
	first := newPool(st, dl, 3)
	second := newPool(st, dl, 3)
	first.Enqueue(ctx, ids(videos))

	var wg sync.WaitGroup
	for _, p := range []*downloader.Pool{first, second} {
		wg.Add(1)
		go func(p *downloader.Pool) {
			defer wg.Done()
			_, err := p.Drain(ctx)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	for _, v := range videos {
		assert.Equal(t, 1, dl.callCount(v.ID))
	}
}

func TestFailedDownloadIsNotRetried(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCfail", 2)

	dl := newFakeDownloader()
	dl.fail[videos[0].ID] = fmt.Errorf("%w: Video unavailable", downloader.ErrVideoGone)
	pool := newPool(st, dl, 2)
	pool.Enqueue(ctx, ids(videos))

	stats, err := pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 1, stats.Failed)

	failed, err := st.GetVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "Video unavailable")

	// A second drain finds nothing: errors wait for an explicit re-queue.
	stats, err = pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, downloader.DrainStats{}, stats)
	assert.Equal(t, 1, dl.callCount(videos[0].ID))

	res := pool.Enqueue(ctx, []int64{videos[0].ID})
	require.Len(t, res, 1)
	assert.True(t, res[0].Queued)
	requeued, err := st.GetVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, requeued.Status)
	assert.Empty(t, requeued.ErrorMessage)
}

func TestEnqueueResults(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCenq", 3)
	pool := newPool(st, newFakeDownloader(), 1)

	// videos[2] becomes Downloaded.
	pool.Enqueue(ctx, []int64{videos[2].ID})
	_, err := pool.Drain(ctx)
	require.NoError(t, err)
	pool.Enqueue(ctx, []int64{videos[1].ID})

	results := pool.Enqueue(ctx, []int64{videos[0].ID, videos[1].ID, videos[2].ID, 9999})
	require.Len(t, results, 4)

	assert.True(t, results[0].Queued)
	assert.NoError(t, results[0].Err)

	assert.False(t, results[1].Queued)
	assert.True(t, results[1].AlreadyQueued)
	assert.NoError(t, results[1].Err)

	var te *models.TransitionError
	require.True(t, errors.As(results[2].Err, &te))
	assert.Equal(t, models.StatusDownloaded, te.From)
	assert.NotEmpty(t, results[2].Error)
	done, err := st.GetVideo(ctx, videos[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, done.Status, "a rejected enqueue leaves the status unchanged")
	assert.NotEmpty(t, done.LocalFile)

	assert.ErrorIs(t, results[3].Err, store.ErrNotFound)
}

func TestFailedDownloadWithoutReasonIsRecorded(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCsilent", 1)

	dl := downloader.DownloaderFunc(func(ctx context.Context, v *models.Video, dir string) (string, error) {
		return "", errors.New("")
	})
	pool := newPool(st, dl, 1)
	pool.Enqueue(ctx, ids(videos))

	stats, err := pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	v, err := st.GetVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, v.Status)
	assert.Equal(t, store.FallbackFailureMessage, v.ErrorMessage)
}

func TestStartReconcilesInterruptedDownloads(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCreconcile", 2)

	_, err := st.EnqueueVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	claimed, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)
	require.Equal(t, videos[0].ID, claimed.ID)

	// A pool that never starts workers: reconciliation alone is observed.
	pool := newPool(st, newFakeDownloader(), 1)
	n, err := pool.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := st.GetVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, v.Status)
}

func TestStartedPoolPicksUpWork(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCstart", 3)

	// Left in Downloading by a previous crash.
	_, err := st.EnqueueVideo(ctx, videos[2].ID)
	require.NoError(t, err)
	_, err = st.ClaimNextQueued(ctx)
	require.NoError(t, err)

	dl := newFakeDownloader()
	pool := newPool(st, dl, 2)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)
	assert.ErrorIs(t, pool.Start(ctx), downloader.ErrPoolRunning)

	pool.Enqueue(ctx, []int64{videos[0].ID, videos[1].ID})

	require.Eventually(t, func() bool {
		n, err := st.CountVideos(ctx, models.VideoFilter{Statuses: []models.Status{models.StatusDownloaded}})
		return err == nil && n == 3
	}, 5*time.Second, 10*time.Millisecond)

	stats := pool.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 3, stats.Downloaded)
}

func TestNotifyWakesIdleWorker(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCwake", 1)

	dl := newFakeDownloader()
	pool := downloader.NewPool(st, dl, nil, downloader.PoolConfig{
		Workers:         1,
		PollInterval:    time.Hour,
		MaxPollInterval: time.Hour,
	})
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	// Let the worker find the queue empty and go to sleep.
	time.Sleep(50 * time.Millisecond)
	pool.Enqueue(ctx, []int64{videos[0].ID})

	require.Eventually(t, func() bool {
		v, err := st.GetVideo(ctx, videos[0].ID)
		return err == nil && v.Status == models.StatusDownloaded
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopWaitsForInFlightDownload(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCstop", 1)

	dl := newFakeDownloader()
	dl.delay = 200 * time.Millisecond
	dl.started = make(chan int64, 1)
	pool := newPool(st, dl, 1)
	require.NoError(t, pool.Start(ctx))

	pool.Enqueue(ctx, []int64{videos[0].ID})
	select {
	case <-dl.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}

	pool.Stop()

	v, err := st.GetVideo(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, v.Status, "in-flight download should complete on stop")
	assert.False(t, pool.Stats().Running)
}

func TestDrainHonorsCancelledContext(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	_, videos := testutil.SeedChannel(t, st, "UCcancel", 2)
	pool := newPool(st, newFakeDownloader(), 1)
	pool.Enqueue(context.Background(), ids(videos))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := pool.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, downloader.DrainStats{}, stats)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal title",
			input:    "Episode 1 - The Beginning",
			expected: "Episode 1 - The Beginning",
		},
		{
			name:     "title with invalid characters",
			input:    "Episode 1: The Beginning?",
			expected: "Episode 1- The Beginning-",
		},
		{
			name:     "title with backslashes and slashes",
			input:    "Episode 1\\The Beginning/Part A",
			expected: "Episode 1-The Beginning-Part A",
		},
		{
			name:     "title with quotes and angle brackets",
			input:    "Episode 1 \"The Beginning\" <Part A>",
			expected: "Episode 1 -The Beginning- -Part A-",
		},
		{
			name:     "title with percent sign",
			input:    "100% Done",
			expected: "100- Done",
		},
		{
			name:     "title with null bytes",
			input:    "Episode 1\x00The Beginning",
			expected: "Episode 1-The Beginning",
		},
		{
			name:     "title starting with dots and hyphens",
			input:    "...---Episode 1",
			expected: "Episode 1",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "untitled",
		},
		{
			name:     "only invalid characters",
			input:    "\\/:*?\"<>|",
			expected: "untitled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := downloader.SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTargetName(t *testing.T) {
	v := &models.Video{ID: 42, VideoInfo: models.VideoInfo{Title: "Hello: World"}}
	assert.Equal(t, "000042_Hello- World", downloader.TargetName(v))
}
