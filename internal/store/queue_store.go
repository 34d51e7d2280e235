package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vrsandeep/vidl/internal/models"
)

// ClaimNextQueued atomically moves the oldest Queued video to Downloading and
// returns it. It returns nil without error when nothing is queued. Two callers
// never receive the same video: selection and update are one statement.
func (s *Store) ClaimNextQueued(ctx context.Context) (*models.Video, error) {
	query := `
		UPDATE videos SET status = ?
		WHERE id = (SELECT id FROM videos WHERE status = ? ORDER BY queued_at, id LIMIT 1)
		  AND status = ?
		RETURNING ` + videoColumns
	var v *models.Video
	err := s.retry(ctx, func() error {
		var err error
		v, err = scanVideo(s.db.QueryRowContext(ctx, query,
			string(models.StatusDownloading), string(models.StatusQueued), string(models.StatusQueued)))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// MarkDownloaded records a finished download of a Downloading video.
func (s *Store) MarkDownloaded(ctx context.Context, id int64, localFile string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVideoTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return setStatusTx(ctx, tx, v, models.StatusDownloaded,
			"downloaded_at = ?, local_file = ?, error_message = NULL", s.clock(), nullString(localFile))
	})
}

// FallbackFailureMessage is recorded when a failed download gives no reason.
const FallbackFailureMessage = "download failed"

// MarkDownloadFailed records a failed download of a Downloading video. The
// stored error message is never empty.
func (s *Store) MarkDownloadFailed(ctx context.Context, id int64, message string) error {
	if strings.TrimSpace(message) == "" {
		message = FallbackFailureMessage
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVideoTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return setStatusTx(ctx, tx, v, models.StatusError, "error_message = ?", nullString(message))
	})
}

// ResetDownloading returns every Downloading video to Queued. It is run at
// startup, when no worker can still be holding one.
func (s *Store) ResetDownloading(ctx context.Context) (int, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE videos SET status = ? WHERE status = ?",
			string(models.StatusQueued), string(models.StatusDownloading))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
