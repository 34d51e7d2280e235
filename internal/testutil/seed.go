package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/store"
)

// SeedChannel creates a YouTube channel with n New videos published one day
// apart and returns them newest first.
func SeedChannel(t *testing.T, st *store.Store, remoteID string, n int) (*models.Channel, []*models.Video) {
	t.Helper()
	ctx := context.Background()
	ch, err := st.CreateChannel(ctx, models.ServiceYoutube, remoteID, "Channel "+remoteID, "")
	if err != nil {
		t.Fatalf("Failed to create channel %s: %v", remoteID, err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	infos := make([]models.VideoInfo, 0, n)
	for i := n; i >= 1; i-- {
		id := fmt.Sprintf("%s-%d", remoteID, i)
		infos = append(infos, models.VideoInfo{
			RemoteID:    id,
			Title:       fmt.Sprintf("Video %d", i),
			PublishedAt: base.AddDate(0, 0, i),
			Duration:    60,
			URL:         "http://youtube.com/watch?v=" + id,
		})
	}
	if _, err := st.CommitChannelCrawl(ctx, store.ChannelCrawl{ChannelID: ch.ID, NewVideos: infos}); err != nil {
		t.Fatalf("Failed to seed videos for %s: %v", remoteID, err)
	}

	videos, err := st.ListVideos(ctx, models.VideoFilter{ChannelID: ch.ID})
	if err != nil {
		t.Fatalf("Failed to list seeded videos: %v", err)
	}
	return ch, videos
}
