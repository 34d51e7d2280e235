// Package mocksource is an in-memory source.Client for development and
// tests. It serves channels and videos without making network calls.
package mocksource

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
)

// Client serves the channels added to it. It is safe for concurrent use.
type Client struct {
	service  models.Service
	pageSize int

	mu       sync.Mutex
	channels map[string]*channel
	aliases  map[string]string
	// OnFetch, when set, runs before every page fetch. A returned error is
	// returned by FetchPage.
	OnFetch func(ctx context.Context, remoteID, cursor string) error
}

type channel struct {
	meta   models.ChannelMetadata
	videos []models.VideoInfo // newest first
	fail   error
	pages  int
}

// New creates an empty mock client for service with the given page size.
func New(service models.Service, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Client{
		service:  service,
		pageSize: pageSize,
		channels: make(map[string]*channel),
		aliases:  make(map[string]string),
	}
}

// Service returns the service the client pretends to be.
func (c *Client) Service() models.Service {
	return c.service
}

// AddChannel registers a channel reachable by its ID and by alias.
func (c *Client) AddChannel(remoteID, alias, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[remoteID] = &channel{meta: models.ChannelMetadata{
		RemoteID:  remoteID,
		Title:     title,
		Thumbnail: "https://placehold.co/88x88?text=" + remoteID,
	}}
	if alias != "" {
		c.aliases[alias] = remoteID
	}
}

// Publish adds videos on top of a channel's listing, as if they were just
// uploaded. The first video is the newest.
func (c *Client) Publish(remoteID string, videos ...models.VideoInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.channels[remoteID]
	ch.videos = append(append([]models.VideoInfo{}, videos...), ch.videos...)
}

// PublishN adds n generated videos on top of a channel's listing.
func (c *Client) PublishN(remoteID string, n int, publishedAfter time.Time) []models.VideoInfo {
	c.mu.Lock()
	existing := len(c.channels[remoteID].videos)
	c.mu.Unlock()

	videos := make([]models.VideoInfo, 0, n)
	for i := n; i >= 1; i-- {
		num := existing + i
		id := fmt.Sprintf("%s-%04d", remoteID, num)
		videos = append(videos, models.VideoInfo{
			RemoteID:    id,
			Title:       fmt.Sprintf("Episode %d", num),
			Description: "Mock video " + id,
			PublishedAt: publishedAfter.Add(time.Duration(num) * time.Hour).UTC(),
			Duration:    60 + num,
			URL:         "http://youtube.com/watch?v=" + id,
			Thumbnail:   "https://placehold.co/120x90?text=" + id,
		})
	}
	c.Publish(remoteID, videos...)
	return videos
}

// Rename changes the remote title and description of a video.
func (c *Client) Rename(remoteID, videoID, title, description string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.channels[remoteID].videos {
		v := &c.channels[remoteID].videos[i]
		if v.RemoteID == videoID {
			v.Title, v.Description = title, description
		}
	}
}

// Fail makes every fetch of a channel return err; nil clears it.
func (c *Client) Fail(remoteID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[remoteID].fail = err
}

// PagesFetched returns how many pages of a channel were served.
func (c *Client) PagesFetched(remoteID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[remoteID]; ok {
		return ch.pages
	}
	return 0
}

func (c *Client) notFound(name string) error {
	return &source.FetchError{Service: c.service, Channel: name, Err: source.ErrNotFound}
}

// ResolveChannel returns the ID of a known channel or alias.
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[name]; ok {
		return name, nil
	}
	if id, ok := c.aliases[name]; ok {
		return id, nil
	}
	return "", c.notFound(name)
}

// ChannelMetadata returns the metadata of a known channel.
func (c *Client) ChannelMetadata(ctx context.Context, remoteID string) (*models.ChannelMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[remoteID]
	if !ok {
		return nil, c.notFound(remoteID)
	}
	if ch.fail != nil {
		return nil, ch.fail
	}
	meta := ch.meta
	return &meta, nil
}

// FetchPage serves a slice of the listing. The cursor is the offset of the page.
func (c *Client) FetchPage(ctx context.Context, remoteID, cursor string) (*source.Page, error) {
	if c.OnFetch != nil {
		if err := c.OnFetch(ctx, remoteID, cursor); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &source.FetchError{Service: c.service, Channel: remoteID, Err: fmt.Errorf("%w: %v", source.ErrTransport, err)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[remoteID]
	if !ok {
		return nil, c.notFound(remoteID)
	}
	if ch.fail != nil {
		return nil, ch.fail
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("mocksource: invalid cursor %q", cursor)
		}
		offset = n
	}
	ch.pages++

	end := min(offset+c.pageSize, len(ch.videos))
	page := &source.Page{}
	if offset < end {
		page.Videos = append(page.Videos, ch.videos[offset:end]...)
	}
	if end < len(ch.videos) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
