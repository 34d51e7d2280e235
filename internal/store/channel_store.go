package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vrsandeep/vidl/internal/models"
)

const channelColumns = `id, service, remote_id, title, thumbnail, created_at, last_checked_at, last_seen_video_id, update_started_at`

func scanChannel(row rowScanner) (*models.Channel, error) {
	var ch models.Channel
	var service string
	var lastChecked, updateStarted sql.NullTime
	var lastSeen sql.NullString
	err := row.Scan(&ch.ID, &service, &ch.RemoteID, &ch.Title, &ch.Thumbnail, &ch.CreatedAt,
		&lastChecked, &lastSeen, &updateStarted)
	if err != nil {
		return nil, err
	}
	ch.Service = models.Service(service)
	ch.CreatedAt = ch.CreatedAt.UTC()
	ch.LastCheckedAt = timePtr(lastChecked)
	ch.LastSeenVideoID = stringPtr(lastSeen)
	ch.UpdateStartedAt = timePtr(updateStarted)
	return &ch, nil
}

func (s *Store) queryChannels(ctx context.Context, query string, args ...any) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := s.retry(ctx, func() error {
		channels = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ch, err := scanChannel(rows)
			if err != nil {
				return err
			}
			channels = append(channels, ch)
		}
		return rows.Err()
	})
	return channels, err
}

func (s *Store) queryChannel(ctx context.Context, query string, args ...any) (*models.Channel, error) {
	var ch *models.Channel
	err := s.retry(ctx, func() error {
		var err error
		ch, err = scanChannel(s.db.QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ch, err
}

// CreateChannel inserts a new channel. It returns ErrDuplicate if the channel
// is already tracked.
func (s *Store) CreateChannel(ctx context.Context, service models.Service, remoteID, title, thumbnail string) (*models.Channel, error) {
	if remoteID == "" {
		return nil, errors.New("channel remote id must not be empty")
	}
	query := `
		INSERT INTO channels (service, remote_id, title, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + channelColumns
	var ch *models.Channel
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ch, err = scanChannel(tx.QueryRowContext(ctx, query, string(service), remoteID, title, thumbnail, s.clock()))
		return err
	})
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("channel %s/%s: %w", service, remoteID, ErrDuplicate)
	}
	return ch, err
}

// GetChannel retrieves a channel by its local ID.
func (s *Store) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return s.queryChannel(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id)
}

// GetChannelByRemoteID retrieves a channel by its natural key.
func (s *Store) GetChannelByRemoteID(ctx context.Context, service models.Service, remoteID string) (*models.Channel, error) {
	return s.queryChannel(ctx, "SELECT "+channelColumns+" FROM channels WHERE service = ? AND remote_id = ?", string(service), remoteID)
}

// ListChannels returns every channel ordered by title.
func (s *Store) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	return s.queryChannels(ctx, "SELECT "+channelColumns+" FROM channels ORDER BY title COLLATE NOCASE, id")
}

// FindChannels returns the channels matching query: a numeric local ID, or a
// case-insensitive substring of the title or remote ID. An empty query matches
// every channel.
func (s *Store) FindChannels(ctx context.Context, query string) ([]*models.Channel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListChannels(ctx)
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		ch, err := s.GetChannel(ctx, id)
		if err == nil {
			return []*models.Channel{ch}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	like := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryChannels(ctx, `
		SELECT `+channelColumns+` FROM channels
		WHERE lower(title) LIKE ? ESCAPE '\' OR lower(remote_id) LIKE ? ESCAPE '\'
		ORDER BY title COLLATE NOCASE, id`, like, like)
}

// DeleteChannel removes a channel and, through the foreign key cascade, all of its videos.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("channel %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// UpdateChannelMetadata replaces the title and thumbnail of a channel.
func (s *Store) UpdateChannelMetadata(ctx context.Context, id int64, title, thumbnail string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE channels SET title = ?, thumbnail = ? WHERE id = ?", title, thumbnail, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("channel %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
