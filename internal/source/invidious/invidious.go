// Package invidious reads YouTube channels through the API of an Invidious instance.
package invidious

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
)

const (
	DefaultBaseURL = "https://y.com.sb"
	defaultTimeout = 20 * time.Second
)

var channelIDRegex = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// Client implements source.Client for YouTube.
type Client struct {
	client   *http.Client
	baseURL  string
	fallback source.Resolver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithFallback sets a resolver used when the instance cannot resolve a name
// or return channel metadata.
func WithFallback(r source.Resolver) Option {
	return func(cl *Client) { cl.fallback = r }
}

// New creates a client for the Invidious instance at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service this client reads.
func (c *Client) Service() models.Service {
	return models.ServiceYoutube
}

// ResolveChannel turns a channel ID, handle, legacy user name or channel URL
// into a channel ID.
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if channelIDRegex.MatchString(name) {
		return name, nil
	}

	var candidates []string
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		candidates = []string{name}
	} else {
		name = strings.TrimPrefix(name, "@")
		candidates = []string{
			"https://www.youtube.com/@" + name,
			"https://www.youtube.com/user/" + name,
			"https://www.youtube.com/c/" + name,
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		var resp ResolveResponse
		endpoint := fmt.Sprintf("%s/api/v1/resolveurl?url=%s", c.baseURL, url.QueryEscape(candidate))
		err := source.GetJSON(ctx, c.client, c.Service(), name, endpoint, nil, &resp)
		if err == nil && resp.UCID != "" {
			return resp.UCID, nil
		}
		if err == nil {
			err = &source.FetchError{Service: c.Service(), Channel: name, Err: source.ErrNotFound}
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}

	if c.fallback != nil {
		if id, err := c.fallback.ResolveChannel(ctx, name); err == nil {
			return id, nil
		}
	}
	return "", lastErr
}

// ChannelMetadata returns the title and avatar of a channel.
func (c *Client) ChannelMetadata(ctx context.Context, remoteID string) (*models.ChannelMetadata, error) {
	var resp ChannelResponse
	endpoint := fmt.Sprintf("%s/api/v1/channels/%s?fields=author,authorId,description,authorThumbnails",
		c.baseURL, url.PathEscape(remoteID))
	err := source.GetJSON(ctx, c.client, c.Service(), remoteID, endpoint, nil, &resp)
	if err != nil {
		if c.fallback != nil && !errors.Is(err, source.ErrNotFound) && ctx.Err() == nil {
			if meta, ferr := c.fallback.ChannelMetadata(ctx, remoteID); ferr == nil {
				return meta, nil
			}
		}
		return nil, err
	}
	id := resp.AuthorID
	if id == "" {
		id = remoteID
	}
	return &models.ChannelMetadata{
		RemoteID:  id,
		Title:     resp.Author,
		Thumbnail: largestThumbnail(resp.AuthorThumbnails),
	}, nil
}

// FetchPage returns one page of a channel's uploads, newest first. The
// cursor is the continuation token returned with the previous page.
func (c *Client) FetchPage(ctx context.Context, remoteID, cursor string) (*source.Page, error) {
	endpoint := fmt.Sprintf("%s/api/v1/channels/%s/videos", c.baseURL, url.PathEscape(remoteID))
	if cursor != "" {
		endpoint += "?continuation=" + url.QueryEscape(cursor)
	}

	var resp VideosResponse
	if err := source.GetJSON(ctx, c.client, c.Service(), remoteID, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	page := &source.Page{Videos: make([]models.VideoInfo, 0, len(resp.Videos))}
	for _, v := range resp.Videos {
		page.Videos = append(page.Videos, models.VideoInfo{
			RemoteID:    v.VideoID,
			Title:       v.Title,
			Description: v.Description,
			PublishedAt: time.Unix(v.Published, 0).UTC(),
			Duration:    v.LengthSeconds,
			URL:         "http://youtube.com/watch?v=" + v.VideoID,
			Thumbnail:   defaultThumbnail(v.VideoThumbnails),
		})
	}
	// An empty page ends the listing even if a token came back.
	if len(resp.Videos) > 0 {
		page.NextCursor = resp.Continuation
	}
	return page, nil
}

// defaultThumbnail prefers the "default" quality rendition, else the first one.
func defaultThumbnail(thumbs []Thumbnail) string {
	for _, t := range thumbs {
		if t.Quality == "default" {
			return t.URL
		}
	}
	if len(thumbs) > 0 {
		return thumbs[0].URL
	}
	return ""
}

func largestThumbnail(thumbs []Thumbnail) string {
	best := -1
	for i, t := range thumbs {
		if best < 0 || t.Width > thumbs[best].Width {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	u := thumbs[best].URL
	// Invidious returns protocol-relative avatar URLs.
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}
