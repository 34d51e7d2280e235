package models

import (
	"fmt"
	"strings"
	"time"
)

// Service identifies the remote hosting service a channel lives on.
type Service string

const (
	ServiceYoutube Service = "youtube"
	ServiceVimeo   Service = "vimeo"
)

// Services lists every supported service.
var Services = []Service{ServiceYoutube, ServiceVimeo}

// ParseService accepts a service name case-insensitively.
func ParseService(s string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "youtube", "yt":
		return ServiceYoutube, nil
	case "vimeo":
		return ServiceVimeo, nil
	}
	return "", fmt.Errorf("unknown service %q", s)
}

func (s Service) String() string { return string(s) }

// Channel is a tracked channel on a remote service.
type Channel struct {
	ID              int64      `json:"id"`
	Service         Service    `json:"service"`
	RemoteID        string     `json:"remote_id"`
	Title           string     `json:"title"`
	Thumbnail       string     `json:"thumbnail"`
	CreatedAt       time.Time  `json:"created_at"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	LastSeenVideoID *string    `json:"last_seen_video_id,omitempty"`
	// UpdateStartedAt is set while a crawl of the channel is in progress.
	UpdateStartedAt *time.Time `json:"update_started_at,omitempty"`
}

// ChannelMetadata is what a remote service reports about a channel.
type ChannelMetadata struct {
	RemoteID  string `json:"remote_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}
