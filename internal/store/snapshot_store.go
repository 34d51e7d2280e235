package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vrsandeep/vidl/internal/models"
)

// ChannelDump is a channel together with all of its videos.
type ChannelDump struct {
	Channel models.Channel
	Videos  []models.Video
}

// DumpAll reads every channel and video in one transaction, so the result is
// a consistent point-in-time view.
func (s *Store) DumpAll(ctx context.Context) ([]ChannelDump, error) {
	var dumps []ChannelDump
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		dumps = nil
		index := make(map[int64]int)

		rows, err := tx.QueryContext(ctx, "SELECT "+channelColumns+" FROM channels ORDER BY id")
		if err != nil {
			return err
		}
		for rows.Next() {
			ch, err := scanChannel(rows)
			if err != nil {
				rows.Close()
				return err
			}
			index[ch.ID] = len(dumps)
			dumps = append(dumps, ChannelDump{Channel: *ch})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, "SELECT "+videoColumns+" FROM videos ORDER BY channel_id, id")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scanVideo(rows)
			if err != nil {
				return err
			}
			i, ok := index[v.ChannelID]
			if !ok {
				continue
			}
			dumps[i].Videos = append(dumps[i].Videos, *v)
		}
		return rows.Err()
	})
	return dumps, err
}

// RestoreStats counts what a restore wrote.
type RestoreStats struct {
	Channels int `json:"channels"`
	Videos   int `json:"videos"`
	// Skipped counts channels and videos already present during a merge.
	Skipped int `json:"skipped"`
}

// RestoreSnapshot writes dumps into the store in one transaction. With
// replace, all existing data is deleted and IDs are preserved. Without it,
// channels and videos missing by natural key are added and existing ones are
// left untouched. Statuses and timestamps are written exactly as given.
func (s *Store) RestoreSnapshot(ctx context.Context, dumps []ChannelDump, replace bool) (RestoreStats, error) {
	for _, d := range dumps {
		for _, v := range d.Videos {
			if !v.Status.Valid() {
				return RestoreStats{}, fmt.Errorf("video %s: invalid status %q", v.RemoteID, string(v.Status))
			}
		}
	}

	var stats RestoreStats
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stats = RestoreStats{}
		if replace {
			for _, q := range []string{"DELETE FROM videos", "DELETE FROM channels"} {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					return err
				}
			}
		}
		for _, d := range dumps {
			channelID, created, err := restoreChannelTx(ctx, tx, d.Channel, replace)
			if err != nil {
				return err
			}
			if created {
				stats.Channels++
			} else {
				stats.Skipped++
			}
			for _, v := range d.Videos {
				added, err := restoreVideoTx(ctx, tx, channelID, v, replace)
				if err != nil {
					return err
				}
				if added {
					stats.Videos++
				} else {
					stats.Skipped++
				}
			}
		}
		return nil
	})
	return stats, err
}

func restoreChannelTx(ctx context.Context, tx *sql.Tx, ch models.Channel, keepID bool) (int64, bool, error) {
	if !keepID {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM channels WHERE service = ? AND remote_id = ?",
			string(ch.Service), ch.RemoteID).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if err != sql.ErrNoRows {
			return 0, false, err
		}
	}

	var id any
	if keepID {
		id = ch.ID
	}
	var lastSeen sql.NullString
	if ch.LastSeenVideoID != nil {
		lastSeen = nullString(*ch.LastSeenVideoID)
	}
	var newID int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO channels (id, service, remote_id, title, thumbnail, created_at, last_checked_at, last_seen_video_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		id, string(ch.Service), ch.RemoteID, ch.Title, ch.Thumbnail, ch.CreatedAt.UTC(),
		nullTime(ch.LastCheckedAt), lastSeen).Scan(&newID)
	if isUniqueViolation(err) {
		return 0, false, fmt.Errorf("channel %s/%s: %w", ch.Service, ch.RemoteID, ErrDuplicate)
	}
	return newID, err == nil, err
}

func restoreVideoTx(ctx context.Context, tx *sql.Tx, channelID int64, v models.Video, keepID bool) (bool, error) {
	var id any
	if keepID {
		id = v.ID
	}
	var dateAdded any
	if !v.DateAdded.IsZero() {
		dateAdded = v.DateAdded.UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO videos (id, channel_id, video_id, status, url, title, description, thumbnail, published_at,
			duration, date_added, queued_at, downloaded_at, local_file, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, video_id) DO NOTHING`,
		id, channelID, v.RemoteID, string(v.Status), v.URL, v.Title, v.Description, v.Thumbnail, v.PublishedAt.UTC(),
		v.Duration, dateAdded, nullTime(v.QueuedAt), nullTime(v.DownloadedAt), nullString(v.LocalFile), nullString(v.ErrorMessage))
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("video %d: %w", v.ID, ErrDuplicate)
		}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
