// Package ytpage resolves YouTube channels by reading the public channel
// pages. It is used when an Invidious instance cannot answer.
package ytpage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/source"
)

const DefaultBaseURL = "https://www.youtube.com"

var channelPathRegex = regexp.MustCompile(`/channel/(UC[0-9A-Za-z_-]{22})`)

// Resolver implements source.Resolver on top of youtube.com pages.
type Resolver struct {
	client  *http.Client
	baseURL string
}

// New creates a resolver reading pages below baseURL.
func New(baseURL string, timeout time.Duration) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// header skips the EU consent interstitial.
var header = http.Header{
	"Cookie":          []string{"CONSENT=YES+1"},
	"Accept-Language": []string{"en"},
}

// ResolveChannel reads the channel page of a handle, user name or URL and
// extracts the channel ID from its metadata.
func (r *Resolver) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	pageURL := name
	if !strings.HasPrefix(name, "http://") && !strings.HasPrefix(name, "https://") {
		pageURL = fmt.Sprintf("%s/@%s", r.baseURL, url.PathEscape(strings.TrimPrefix(name, "@")))
	}

	doc, err := r.fetch(ctx, name, pageURL)
	if err != nil {
		return "", err
	}
	if id := channelID(doc); id != "" {
		return id, nil
	}
	return "", &source.FetchError{Service: models.ServiceYoutube, Channel: name,
		Err: fmt.Errorf("%w: no channel id on page", source.ErrNotFound)}
}

// ChannelMetadata reads the title and avatar of a channel from its page.
func (r *Resolver) ChannelMetadata(ctx context.Context, remoteID string) (*models.ChannelMetadata, error) {
	doc, err := r.fetch(ctx, remoteID, fmt.Sprintf("%s/channel/%s", r.baseURL, url.PathEscape(remoteID)))
	if err != nil {
		return nil, err
	}
	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	if title == "" {
		title = strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), " - YouTube")
	}
	thumb, _ := doc.Find(`meta[property="og:image"]`).Attr("content")
	id := channelID(doc)
	if id == "" {
		id = remoteID
	}
	return &models.ChannelMetadata{RemoteID: id, Title: title, Thumbnail: thumb}, nil
}

func (r *Resolver) fetch(ctx context.Context, channel, pageURL string) (*goquery.Document, error) {
	resp, err := source.Get(ctx, r.client, models.ServiceYoutube, channel, pageURL, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &source.FetchError{Service: models.ServiceYoutube, Channel: channel,
			Err: fmt.Errorf("%w: unreadable page: %v", source.ErrTransport, err)}
	}
	return doc, nil
}

// channelID looks for the channel ID in the page metadata.
func channelID(doc *goquery.Document) string {
	for _, sel := range []string{`meta[itemprop="identifier"]`, `meta[itemprop="channelId"]`} {
		if id, ok := doc.Find(sel).Attr("content"); ok && strings.HasPrefix(id, "UC") {
			return id
		}
	}
	for _, sel := range []string{`link[rel="canonical"]`, `meta[property="og:url"]`} {
		node := doc.Find(sel)
		val, ok := node.Attr("href")
		if !ok {
			val, _ = node.Attr("content")
		}
		if m := channelPathRegex.FindStringSubmatch(val); m != nil {
			return m[1]
		}
	}
	return ""
}
