package invidious

// Thumbnail is one rendition of an image.
type Thumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// ChannelResponse is the subset of /api/v1/channels/{id} that is requested.
type ChannelResponse struct {
	Author           string      `json:"author"`
	AuthorID         string      `json:"authorId"`
	Description      string      `json:"description"`
	AuthorThumbnails []Thumbnail `json:"authorThumbnails"`
}

// Video is one entry of a channel's video listing.
type Video struct {
	Title           string      `json:"title"`
	VideoID         string      `json:"videoId"`
	VideoThumbnails []Thumbnail `json:"videoThumbnails"`
	Description     string      `json:"description"`
	LengthSeconds   int         `json:"lengthSeconds"`
	Published       int64       `json:"published"`
}

// VideosResponse is a page of /api/v1/channels/{id}/videos.
type VideosResponse struct {
	Videos       []Video `json:"videos"`
	Continuation string  `json:"continuation"`
}

// ResolveResponse is returned by /api/v1/resolveurl.
type ResolveResponse struct {
	UCID string `json:"ucid"`
}
