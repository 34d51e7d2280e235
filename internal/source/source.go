// Package source defines the clients that read channel and video metadata
// from remote hosting services.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vrsandeep/vidl/internal/models"
)

var (
	// ErrNotFound means the channel or video does not exist remotely.
	ErrNotFound = errors.New("not found on remote service")
	// ErrRateLimited means the service refused the request for now.
	ErrRateLimited = errors.New("rate limited by remote service")
	// ErrTransport covers network failures, timeouts and malformed responses.
	ErrTransport = errors.New("remote service unavailable")
	// ErrUnauthorized means the service rejected the configured credentials.
	ErrUnauthorized = errors.New("remote service rejected credentials")
)

// FetchError records which service and channel a remote failure belongs to.
type FetchError struct {
	Service models.Service
	Channel string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s channel %s: %v", e.Service, e.Channel, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying later may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport)
}

// Page is one page of a channel's videos, newest first.
type Page struct {
	Videos []models.VideoInfo
	// NextCursor fetches the following, older page. Empty means there is none.
	NextCursor string
}

// Resolver turns user input into channel identities.
type Resolver interface {
	// ResolveChannel maps a user name, handle, URL or ID to the remote channel ID.
	ResolveChannel(ctx context.Context, name string) (string, error)
	ChannelMetadata(ctx context.Context, remoteID string) (*models.ChannelMetadata, error)
}

// Client reads the video listing of channels on one service.
type Client interface {
	Resolver
	Service() models.Service
	// FetchPage returns the page at cursor; the empty cursor is the newest page.
	FetchPage(ctx context.Context, remoteID, cursor string) (*Page, error)
}

// Registry holds one Client per service.
type Registry struct {
	mu      sync.RWMutex
	clients map[models.Service]Client
}

// NewRegistry returns a registry containing clients.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Service]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds a client. Registering a service twice is a setup error and panics.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.Service()]; exists {
		panic(fmt.Sprintf("client for service '%s' is already registered", c.Service()))
	}
	r.clients[c.Service()] = c
}

// Get returns the client of a service.
func (r *Registry) Get(service models.Service) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[service]
	return c, ok
}

// Services lists the registered services in name order.
func (r *Registry) Services() []models.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Service
	for s := range r.clients {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
