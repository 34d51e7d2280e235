// Package vimeo reads Vimeo user channels through the Vimeo API.
package vimeo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
)

const (
	DefaultBaseURL = "https://api.vimeo.com"
	pageSize       = 50
	videoFields    = "uri,name,description,duration,release_time,link,pictures.sizes"
)

// Client implements source.Client for Vimeo.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

// New creates a Vimeo client authenticating with an access token.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Service returns the service this client reads.
func (c *Client) Service() models.Service {
	return models.ServiceVimeo
}

func (c *Client) header() http.Header {
	h := http.Header{"Accept": []string{"application/vnd.vimeo.*+json;version=3.4"}}
	if c.token != "" {
		h.Set("Authorization", "bearer "+c.token)
	}
	return h
}

// ResolveChannel maps a Vimeo user name or profile URL to the numeric user ID.
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if u, err := url.Parse(name); err == nil && u.Host != "" {
		name = strings.Trim(u.Path, "/")
	}
	var resp User
	endpoint := fmt.Sprintf("%s/users/%s?fields=uri,name", c.baseURL, url.PathEscape(name))
	if err := source.GetJSON(ctx, c.client, c.Service(), name, endpoint, c.header(), &resp); err != nil {
		return "", err
	}
	id := lastSegment(resp.URI)
	if id == "" {
		return "", &source.FetchError{Service: c.Service(), Channel: name, Err: source.ErrNotFound}
	}
	return id, nil
}

// ChannelMetadata returns the user's display name and portrait.
func (c *Client) ChannelMetadata(ctx context.Context, remoteID string) (*models.ChannelMetadata, error) {
	var resp User
	endpoint := fmt.Sprintf("%s/users/%s?fields=uri,name,pictures.sizes", c.baseURL, url.PathEscape(remoteID))
	if err := source.GetJSON(ctx, c.client, c.Service(), remoteID, endpoint, c.header(), &resp); err != nil {
		return nil, err
	}
	return &models.ChannelMetadata{
		RemoteID:  remoteID,
		Title:     resp.Name,
		Thumbnail: resp.Pictures.largest(),
	}, nil
}

// FetchPage returns one page of a user's videos, newest first. The cursor is
// the page number.
func (c *Client) FetchPage(ctx context.Context, remoteID, cursor string) (*source.Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, &source.FetchError{Service: c.Service(), Channel: remoteID,
				Err: fmt.Errorf("%w: invalid page cursor %q", source.ErrTransport, cursor)}
		}
		page = n
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("sort", "date")
	q.Set("direction", "desc")
	q.Set("fields", videoFields)
	endpoint := fmt.Sprintf("%s/users/%s/videos?%s", c.baseURL, url.PathEscape(remoteID), q.Encode())

	var resp VideosResponse
	if err := source.GetJSON(ctx, c.client, c.Service(), remoteID, endpoint, c.header(), &resp); err != nil {
		return nil, err
	}

	out := &source.Page{Videos: make([]models.VideoInfo, 0, len(resp.Data))}
	for _, v := range resp.Data {
		out.Videos = append(out.Videos, models.VideoInfo{
			RemoteID:    lastSegment(v.URI),
			Title:       v.Name,
			Description: v.Description,
			PublishedAt: v.ReleaseTime.UTC(),
			Duration:    v.Duration,
			URL:         v.Link,
			Thumbnail:   v.Pictures.largest(),
		})
	}
	if resp.Paging.Next != nil && *resp.Paging.Next != "" && len(resp.Data) > 0 {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

// lastSegment returns "123" for "/videos/123".
func lastSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
