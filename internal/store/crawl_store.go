package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
)

// TryBeginChannelUpdate takes the per-channel update guard. It returns false
// when another crawl holds the guard and started less than staleAfter ago.
func (s *Store) TryBeginChannelUpdate(ctx context.Context, channelID int64, staleAfter time.Duration) (bool, error) {
	var acquired bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.clock()
		res, err := tx.ExecContext(ctx, `
			UPDATE channels SET update_started_at = ?
			WHERE id = ? AND (update_started_at IS NULL OR update_started_at < ?)`,
			now, channelID, now.Add(-staleAfter))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		acquired = n == 1
		if acquired {
			return nil
		}
		var exists int
		err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels WHERE id = ?", channelID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
		}
		return nil
	})
	return acquired, err
}

// EndChannelUpdate releases the update guard without recording a check.
func (s *Store) EndChannelUpdate(ctx context.Context, channelID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE channels SET update_started_at = NULL WHERE id = ?", channelID)
		return err
	})
}

// KnownVideos returns the stored videos of a channel whose remote IDs are in remoteIDs.
func (s *Store) KnownVideos(ctx context.Context, channelID int64, remoteIDs []string) (map[string]*models.Video, error) {
	known := make(map[string]*models.Video)
	if len(remoteIDs) == 0 {
		return known, nil
	}
	marks := make([]string, len(remoteIDs))
	args := []any{channelID}
	for i, id := range remoteIDs {
		marks[i] = "?"
		args = append(args, id)
	}
	query := "SELECT " + videoColumns + " FROM videos WHERE channel_id = ? AND video_id IN (" + strings.Join(marks, ", ") + ")"
	err := s.retry(ctx, func() error {
		clear(known)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scanVideo(rows)
			if err != nil {
				return err
			}
			known[v.RemoteID] = v
		}
		return rows.Err()
	})
	return known, err
}

// Correction replaces the cosmetic metadata of a stored video.
type Correction struct {
	VideoID     int64
	Title       string
	Description string
}

// ChannelCrawl is the outcome of one successful channel crawl.
type ChannelCrawl struct {
	ChannelID int64
	// NewVideos are in the order they were observed, newest first.
	NewVideos   []models.VideoInfo
	Corrections []Correction
	// LastSeenVideoID is the newest remote video observed, empty to keep the stored value.
	LastSeenVideoID string
}

// CommitChannelCrawl stores the result of a crawl in one transaction: new
// videos are inserted oldest first so local IDs ascend with publication
// order, corrections are applied, the channel is marked as checked and its
// update guard is released. It returns the number of inserted videos.
func (s *Store) CommitChannelCrawl(ctx context.Context, crawl ChannelCrawl) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		now := s.clock()
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO videos (channel_id, video_id, status, url, title, description, thumbnail, published_at, duration, date_added)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel_id, video_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := len(crawl.NewVideos) - 1; i >= 0; i-- {
			v := crawl.NewVideos[i]
			res, err := stmt.ExecContext(ctx, crawl.ChannelID, v.RemoteID, string(models.StatusNew), v.URL, v.Title,
				v.Description, v.Thumbnail, v.PublishedAt.UTC(), v.Duration, now)
			if err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("channel %d: %w", crawl.ChannelID, ErrNotFound)
				}
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}

		for _, c := range crawl.Corrections {
			_, err := tx.ExecContext(ctx, "UPDATE videos SET title = ?, description = ? WHERE id = ? AND channel_id = ?",
				c.Title, c.Description, c.VideoID, crawl.ChannelID)
			if err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE channels
			SET last_checked_at = ?, last_seen_video_id = COALESCE(?, last_seen_video_id), update_started_at = NULL
			WHERE id = ?`, now, nullString(crawl.LastSeenVideoID), crawl.ChannelID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("channel %d: %w", crawl.ChannelID, ErrNotFound)
		}
		return nil
	})
	return inserted, err
}
