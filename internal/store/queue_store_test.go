package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/store"
	"github.com/vrsandeep/vidl/internal/testutil"
)

func TestEnqueueVideo(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := seedChannel(t, st, "UCq", 4)

	t.Run("New to Queued", func(t *testing.T) {
		res, err := st.EnqueueVideo(ctx, videos[0].ID)
		require.NoError(t, err)
		assert.Equal(t, store.Enqueued, res)

		v, err := st.GetVideo(ctx, videos[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusQueued, v.Status)
		assert.NotNil(t, v.QueuedAt)
	})

	t.Run("Enqueue is idempotent", func(t *testing.T) {
		res, err := st.EnqueueVideo(ctx, videos[0].ID)
		require.NoError(t, err)
		assert.Equal(t, store.AlreadyQueued, res)
	})

	t.Run("Ignored can be queued", func(t *testing.T) {
		require.NoError(t, st.IgnoreVideo(ctx, videos[1].ID))
		res, err := st.EnqueueVideo(ctx, videos[1].ID)
		require.NoError(t, err)
		assert.Equal(t, store.Enqueued, res)
	})

	t.Run("Downloaded is rejected", func(t *testing.T) {
		_, err := st.EnqueueVideo(ctx, videos[2].ID)
		require.NoError(t, err)
		claimed := claimUntil(t, st, videos[2].ID)
		require.NoError(t, st.MarkDownloaded(ctx, claimed.ID, "/tmp/x.mp4"))

		_, err = st.EnqueueVideo(ctx, videos[2].ID)
		var te *models.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, models.StatusDownloaded, te.From)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		v, err := st.GetVideo(ctx, videos[2].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDownloaded, v.Status, "a rejected enqueue leaves the status unchanged")
		assert.Equal(t, "/tmp/x.mp4", v.LocalFile)
	})

	t.Run("Unknown video", func(t *testing.T) {
		_, err := st.EnqueueVideo(ctx, 999)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestIgnoreUnignore(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := seedChannel(t, st, "UCi", 2)
	id := videos[0].ID

	require.NoError(t, st.IgnoreVideo(ctx, id))
	require.NoError(t, st.IgnoreVideo(ctx, id), "ignoring twice is a no-op")
	v, _ := st.GetVideo(ctx, id)
	assert.Equal(t, models.StatusIgnored, v.Status)

	require.NoError(t, st.UnignoreVideo(ctx, id))
	require.NoError(t, st.UnignoreVideo(ctx, id))
	v, _ = st.GetVideo(ctx, id)
	assert.Equal(t, models.StatusNew, v.Status)

	_, err := st.EnqueueVideo(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, st.IgnoreVideo(ctx, id), models.ErrInvalidTransition, "queued videos cannot be ignored")
}

// claimUntil claims queued videos until the wanted one is returned.
func claimUntil(t *testing.T, st *store.Store, id int64) *models.Video {
	t.Helper()
	for {
		v, err := st.ClaimNextQueued(context.Background())
		require.NoError(t, err)
		require.NotNil(t, v, "video %d never claimed", id)
		if v.ID == id {
			return v
		}
	}
}

func TestClaimNextQueuedOrder(t *testing.T) {
	ctx := context.Background()
	now := baseTime
	st := store.New(testutil.SetupTestDB(t), store.WithClock(func() time.Time { return now }))
	_, videos := seedChannel(t, st, "UCo", 3)

	// Queue in the order 2, 0, 1.
	for _, i := range []int{2, 0, 1} {
		now = now.Add(time.Second)
		_, err := st.EnqueueVideo(ctx, videos[i].ID)
		require.NoError(t, err)
	}

	for _, i := range []int{2, 0, 1} {
		v, err := st.ClaimNextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, videos[i].ID, v.ID)
		assert.Equal(t, models.StatusDownloading, v.Status)
	}

	v, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)
	assert.Nil(t, v, "empty queue")
}

func TestClaimNextQueuedIsExclusive(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := seedChannel(t, st, "UCx", 30)
	for _, v := range videos {
		_, err := st.EnqueueVideo(ctx, v.ID)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := st.ClaimNextQueued(ctx)
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if v == nil {
					return
				}
				mu.Lock()
				claimed[v.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, len(videos))
	for id, n := range claimed {
		assert.Equal(t, 1, n, "video %d claimed %d times", id, n)
	}
}

func TestMarkDownloadOutcome(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := seedChannel(t, st, "UCm", 2)

	t.Run("Only Downloading videos can complete", func(t *testing.T) {
		err := st.MarkDownloaded(ctx, videos[0].ID, "/tmp/a.mp4")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	for _, v := range videos {
		_, err := st.EnqueueVideo(ctx, v.ID)
		require.NoError(t, err)
	}
	first, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)
	second, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)

	require.NoError(t, st.MarkDownloaded(ctx, first.ID, "/tmp/a.mp4"))
	require.NoError(t, st.MarkDownloadFailed(ctx, second.ID, "boom"))

	got, _ := st.GetVideo(ctx, first.ID)
	assert.Equal(t, models.StatusDownloaded, got.Status)
	assert.Equal(t, "/tmp/a.mp4", got.LocalFile)
	assert.NotNil(t, got.DownloadedAt)

	got, _ = st.GetVideo(ctx, second.ID)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)

	t.Run("Empty failure reason gets a fallback message", func(t *testing.T) {
		third, err := st.CreateChannel(ctx, models.ServiceYoutube, "UCm-empty", "Empty", "")
		require.NoError(t, err)
		_, err = st.CommitChannelCrawl(ctx, store.ChannelCrawl{
			ChannelID: third.ID,
			NewVideos: []models.VideoInfo{{RemoteID: "silent", Title: "Silent", PublishedAt: time.Now()}},
		})
		require.NoError(t, err)
		vs, err := st.ListVideos(ctx, models.VideoFilter{ChannelID: third.ID})
		require.NoError(t, err)
		require.Len(t, vs, 1)

		_, err = st.EnqueueVideo(ctx, vs[0].ID)
		require.NoError(t, err)
		claimed := claimUntil(t, st, vs[0].ID)
		require.NoError(t, st.MarkDownloadFailed(ctx, claimed.ID, "  "))

		got, err := st.GetVideo(ctx, vs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, got.Status)
		assert.Equal(t, store.FallbackFailureMessage, got.ErrorMessage)
	})

	t.Run("Error can be re-queued and clears the message", func(t *testing.T) {
		res, err := st.EnqueueVideo(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, store.Enqueued, res)
		got, _ := st.GetVideo(ctx, second.ID)
		assert.Equal(t, models.StatusQueued, got.Status)
		assert.Empty(t, got.ErrorMessage)
	})
}

func TestResetDownloading(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	_, videos := seedChannel(t, st, "UCr", 3)
	for _, v := range videos {
		_, err := st.EnqueueVideo(ctx, v.ID)
		require.NoError(t, err)
	}
	_, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)
	_, err = st.ClaimNextQueued(ctx)
	require.NoError(t, err)

	n, err := st.ResetDownloading(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusQueued])
	assert.Zero(t, counts[models.StatusDownloading])
}
