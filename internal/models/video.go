package models

import "time"

// VideoInfo is the service-neutral metadata of a remote video.
type VideoInfo struct {
	RemoteID    string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	// Duration is the length in seconds, 0 when unknown.
	Duration  int    `json:"duration"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
}

// Video is a VideoInfo stored locally, together with its lifecycle state.
type Video struct {
	ID        int64 `json:"id"`
	ChannelID int64 `json:"channel_id"`
	VideoInfo
	Status       Status     `json:"status"`
	DateAdded    time.Time  `json:"date_added"`
	QueuedAt     *time.Time `json:"queued_at,omitempty"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	LocalFile    string     `json:"local_file,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// VideoFilter narrows a video listing. Zero values match everything.
type VideoFilter struct {
	ChannelID int64
	Statuses  []Status
	// Title matches case-insensitively anywhere in the title.
	Title  string
	Limit  int
	Offset int
}
