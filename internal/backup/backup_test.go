package backup_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/vidl/internal/backup"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/store"
	"github.com/vrsandeep/vidl/internal/testutil"
)

// populate creates two channels and moves some videos through the lifecycle.
func populate(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	_, a := testutil.SeedChannel(t, st, "UCalpha", 3)
	testutil.SeedChannel(t, st, "UCbeta", 2)

	require.NoError(t, st.IgnoreVideo(ctx, a[0].ID))
	_, err := st.EnqueueVideo(ctx, a[1].ID)
	require.NoError(t, err)
	claimed, err := st.ClaimNextQueued(ctx)
	require.NoError(t, err)
	require.NoError(t, st.MarkDownloaded(ctx, claimed.ID, "/dl/video.mp4"))
	_, err = st.EnqueueVideo(ctx, a[2].ID)
	require.NoError(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.New(testutil.SetupTestDB(t))
	populate(t, src)

	var buf bytes.Buffer
	snap, err := backup.Export(ctx, src, &buf)
	require.NoError(t, err)
	assert.Equal(t, backup.Format, snap.Format)
	assert.Equal(t, backup.Version, snap.Version)
	assert.NotZero(t, snap.SchemaVersion)
	require.Len(t, snap.Channels, 2)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "vidl-snapshot", raw["format"])

	dst := store.New(testutil.SetupTestDB(t))
	stats, err := backup.Import(ctx, dst, bytes.NewReader(buf.Bytes()), backup.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, 5, stats.Videos)

	want, err := src.DumpAll(ctx)
	require.NoError(t, err)
	got, err := dst.DumpAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Channel.ID, got[i].Channel.ID)
		assert.Equal(t, want[i].Channel.RemoteID, got[i].Channel.RemoteID)
		assert.True(t, want[i].Channel.CreatedAt.Equal(got[i].Channel.CreatedAt))
		require.Len(t, got[i].Videos, len(want[i].Videos))
		for j, wv := range want[i].Videos {
			gv := got[i].Videos[j]
			assert.Equal(t, wv.ID, gv.ID)
			assert.Equal(t, wv.Status, gv.Status)
			assert.Equal(t, wv.LocalFile, gv.LocalFile)
			assert.True(t, wv.PublishedAt.Equal(gv.PublishedAt))
			assert.True(t, wv.DateAdded.Equal(gv.DateAdded))
			if wv.DownloadedAt != nil {
				require.NotNil(t, gv.DownloadedAt)
				assert.True(t, wv.DownloadedAt.Equal(*gv.DownloadedAt))
			}
		}
	}

	counts, err := dst.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusIgnored])
	assert.Equal(t, 1, counts[models.StatusDownloaded])
	assert.Equal(t, 1, counts[models.StatusQueued])
}

func TestImportMerge(t *testing.T) {
	ctx := context.Background()
	src := store.New(testutil.SetupTestDB(t))
	populate(t, src)
	var buf bytes.Buffer
	_, err := backup.Export(ctx, src, &buf)
	require.NoError(t, err)

	dst := store.New(testutil.SetupTestDB(t))
	_, existing := testutil.SeedChannel(t, dst, "UCalpha", 1)
	testutil.SeedChannel(t, dst, "UCgamma", 1)

	stats, err := backup.Import(ctx, dst, &buf, backup.ModeMerge)
	require.NoError(t, err)
	// UCalpha exists; UCbeta is new. UCalpha-1 exists; the other four videos are new.
	assert.Equal(t, 1, stats.Channels)
	assert.Equal(t, 4, stats.Videos)
	assert.Equal(t, 2, stats.Skipped)

	channels, err := dst.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 3)

	// Existing rows are left untouched.
	v, err := dst.GetVideo(ctx, existing[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, v.Status)
}

func TestImportRejectsForeignDocuments(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "this is not json"},
		{"wrong format", `{"format":"something-else","version":"1.0.0","channels":[]}`},
		{"major version too new", `{"format":"vidl-snapshot","version":"2.0.0","channels":[]}`},
		{"invalid version", `{"format":"vidl-snapshot","version":"one","channels":[]}`},
		{"schema too new", `{"format":"vidl-snapshot","version":"1.0.0","schema_version":999,"channels":[]}`},
		{"missing schema version", `{"format":"vidl-snapshot","version":"1.0.0","channels":[
			{"service":"youtube","remote_id":"UCx","created_at":"2024-01-01T00:00:00Z","videos":[]}]}`},
		{"zero schema version", `{"format":"vidl-snapshot","version":"1.0.0","schema_version":0,"channels":[]}`},
		{"unknown service", `{"format":"vidl-snapshot","version":"1.0.0","schema_version":1,"channels":[{"service":"myspace","remote_id":"x","videos":[]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := backup.Import(ctx, st, strings.NewReader(tt.doc), backup.ModeReplace)
			assert.ErrorIs(t, err, backup.ErrUnsupportedSnapshot)
		})
	}

	channels, err := st.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels, "rejected snapshots must not write anything")
}

func TestImportAcceptsMinorVersions(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	doc := `{"format":"vidl-snapshot","version":"1.4.2","schema_version":1,"channels":[]}`
	stats, err := backup.Import(ctx, st, strings.NewReader(doc), backup.ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, store.RestoreStats{}, stats)
}

func TestImportInvalidStatusRollsBack(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.SetupTestDB(t))
	testutil.SeedChannel(t, st, "UCkeep", 2)

	doc := `{"format":"vidl-snapshot","version":"1.0.0","schema_version":1,"channels":[
		{"id":1,"service":"youtube","remote_id":"UCnew","title":"New","created_at":"2024-01-01T00:00:00Z",
		 "videos":[{"id":1,"video_id":"v1","title":"t","published_at":"2024-01-01T00:00:00Z","status":"ZZ"}]}]}`
	_, err := backup.Import(ctx, st, strings.NewReader(doc), backup.ModeReplace)
	require.Error(t, err)

	channels, err := st.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1, "a failed import must leave the database unchanged")
	assert.Equal(t, "UCkeep", channels[0].RemoteID)
}
