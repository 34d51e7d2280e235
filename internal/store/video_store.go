package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vrsandeep/vidl/internal/models"
)

const videoColumns = `id, channel_id, video_id, status, url, title, description, thumbnail, published_at, duration, date_added, queued_at, downloaded_at, local_file, error_message`

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var status string
	var dateAdded, queuedAt, downloadedAt sql.NullTime
	var localFile, errMsg sql.NullString
	err := row.Scan(&v.ID, &v.ChannelID, &v.RemoteID, &status, &v.URL, &v.Title, &v.Description, &v.Thumbnail,
		&v.PublishedAt, &v.Duration, &dateAdded, &queuedAt, &downloadedAt, &localFile, &errMsg)
	if err != nil {
		return nil, err
	}
	v.Status = models.Status(status)
	v.PublishedAt = v.PublishedAt.UTC()
	if dateAdded.Valid {
		v.DateAdded = dateAdded.Time.UTC()
	}
	v.QueuedAt = timePtr(queuedAt)
	v.DownloadedAt = timePtr(downloadedAt)
	v.LocalFile = localFile.String
	v.ErrorMessage = errMsg.String
	return &v, nil
}

func getVideoTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Video, error) {
	v, err := scanVideo(tx.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	return v, err
}

// GetVideo retrieves a single video by its local ID.
func (s *Store) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	var v *models.Video
	err := s.retry(ctx, func() error {
		var err error
		v, err = scanVideo(s.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	return v, err
}

func videoWhere(f models.VideoFilter) (string, []any) {
	var conds []string
	var args []any
	if f.ChannelID != 0 {
		conds = append(conds, "channel_id = ?")
		args = append(args, f.ChannelID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if t := strings.TrimSpace(f.Title); t != "" {
		conds = append(conds, `lower(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(t))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListVideos returns the videos matching the filter, newest first.
func (s *Store) ListVideos(ctx context.Context, f models.VideoFilter) ([]*models.Video, error) {
	where, args := videoWhere(f)
	query := "SELECT " + videoColumns + " FROM videos" + where + " ORDER BY published_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	var videos []*models.Video
	err := s.retry(ctx, func() error {
		videos = nil
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
			videos = append(videos, v)
		}
		return rows.Err()
	})
	return videos, err
}

// CountVideos returns how many videos match the filter, ignoring Limit and Offset.
func (s *Store) CountVideos(ctx context.Context, f models.VideoFilter) (int, error) {
	where, args := videoWhere(f)
	var n int
	err := s.retry(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos"+where, args...).Scan(&n)
	})
	return n, err
}

// CountByStatus returns the number of videos per status.
func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	counts := make(map[models.Status]int)
	err := s.retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM videos GROUP BY status")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var st string
			var n int
			if err := rows.Scan(&st, &n); err != nil {
				return err
			}
			counts[models.Status(st)] = n
		}
		return rows.Err()
	})
	return counts, err
}

// EnqueueResult tells whether an enqueue changed anything.
type EnqueueResult int

const (
	// Enqueued means the video moved to Queued.
	Enqueued EnqueueResult = iota
	// AlreadyQueued means the video was Queued or Downloading already.
	AlreadyQueued
)

// EnqueueVideo moves a video to Queued. Queued and Downloading videos are left
// alone. Downloaded videos are rejected with a *models.TransitionError.
func (s *Store) EnqueueVideo(ctx context.Context, id int64) (EnqueueResult, error) {
	result := Enqueued
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVideoTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if v.Status == models.StatusQueued || v.Status == models.StatusDownloading {
			result = AlreadyQueued
			return nil
		}
		result = Enqueued
		return setStatusTx(ctx, tx, v, models.StatusQueued,
			"queued_at = ?, error_message = NULL", s.clock())
	})
	return result, err
}

// IgnoreVideo marks a New video as Ignored. Ignoring an Ignored video is a no-op.
func (s *Store) IgnoreVideo(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVideoTx(ctx, tx, id)
		if err != nil || v.Status == models.StatusIgnored {
			return err
		}
		return setStatusTx(ctx, tx, v, models.StatusIgnored, "")
	})
}

// UnignoreVideo returns an Ignored video to New. Un-ignoring a New video is a no-op.
func (s *Store) UnignoreVideo(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVideoTx(ctx, tx, id)
		if err != nil || v.Status == models.StatusNew {
			return err
		}
		return setStatusTx(ctx, tx, v, models.StatusNew, "")
	})
}

// setStatusTx moves v to the given status if the state machine allows it. The
// update only applies while the row still has the status that was read, so a
// concurrent change is reported instead of overwritten. extra is an optional
// SET fragment with its arguments.
func setStatusTx(ctx context.Context, tx *sql.Tx, v *models.Video, to models.Status, extra string, extraArgs ...any) error {
	if err := models.CheckTransition(v.ID, v.Status, to); err != nil {
		return err
	}
	set := "status = ?"
	if extra != "" {
		set += ", " + extra
	}
	args := append([]any{string(to)}, extraArgs...)
	args = append(args, v.ID, string(v.Status))
	res, err := tx.ExecContext(ctx, "UPDATE videos SET "+set+" WHERE id = ? AND status = ?", args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %d changed concurrently: %w", v.ID, &models.TransitionError{VideoID: v.ID, From: v.Status, To: to})
	}
	return nil
}
