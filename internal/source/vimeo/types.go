package vimeo

import "time"

// Pictures is a set of renditions of an image.
type Pictures struct {
	Sizes []struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Link   string `json:"link"`
	} `json:"sizes"`
}

func (p Pictures) largest() string {
	link, width := "", -1
	for _, s := range p.Sizes {
		if s.Width > width {
			link, width = s.Link, s.Width
		}
	}
	return link
}

// User is the subset of a Vimeo user object that is requested.
type User struct {
	URI      string   `json:"uri"`
	Name     string   `json:"name"`
	Pictures Pictures `json:"pictures"`
}

// Video is the subset of a Vimeo video object that is requested.
type Video struct {
	URI         string    `json:"uri"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	ReleaseTime time.Time `json:"release_time"`
	Link        string    `json:"link"`
	Pictures    Pictures  `json:"pictures"`
}

// VideosResponse is a page of /users/{id}/videos.
type VideosResponse struct {
	Total  int `json:"total"`
	Page   int `json:"page"`
	Paging struct {
		Next *string `json:"next"`
	} `json:"paging"`
	Data []Video `json:"data"`
}
