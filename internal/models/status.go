package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a video. Values are the two-letter codes
// stored in the database.
type Status string

const (
	StatusNew         Status = "NE"
	StatusQueued      Status = "QU"
	StatusDownloading Status = "DL"
	StatusDownloaded  Status = "GR"
	StatusError       Status = "GE"
	StatusIgnored     Status = "IG"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusNew, StatusQueued, StatusDownloading, StatusDownloaded, StatusError, StatusIgnored}

var statusNames = map[Status]string{
	StatusNew:         "New",
	StatusQueued:      "Queued",
	StatusDownloading: "Downloading",
	StatusDownloaded:  "Downloaded",
	StatusError:       "Error",
	StatusIgnored:     "Ignored",
}

// ErrInvalidTransition is wrapped by every rejected status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected status change of one video.
type TransitionError struct {
	VideoID int64
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("video %d: cannot change status from %s to %s", e.VideoID, e.From.Name(), e.To.Name())
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// transitions holds the allowed target statuses per source status.
// Downloading -> Queued is only used when reconciling after a restart.
var transitions = map[Status][]Status{
	StatusNew:         {StatusQueued, StatusIgnored},
	StatusIgnored:     {StatusNew, StatusQueued},
	StatusQueued:      {StatusDownloading},
	StatusDownloading: {StatusDownloaded, StatusError, StatusQueued},
	StatusError:       {StatusQueued},
}

// CanTransition reports whether a video may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError if the change is not allowed.
func CheckTransition(videoID int64, from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{VideoID: videoID, From: from, To: to}
	}
	return nil
}

// Valid reports whether s is a known status code.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Name is the human readable name of the status.
func (s Status) Name() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return string(s)
}

func (s Status) String() string { return s.Name() }

// MarshalJSON encodes the status as its code, keeping snapshots stable.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts either a code or a name.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus accepts a status code ("QU") or name ("queued"), case-insensitively.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for code, name := range statusNames {
		if strings.EqualFold(s, string(code)) || strings.EqualFold(s, name) {
			return code, nil
		}
	}
	// Names used by older releases.
	switch strings.ToLower(s) {
	case "grabbed":
		return StatusDownloaded, nil
	case "graberror", "grab_error":
		return StatusError, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ParseStatusList parses a comma separated list such as "GE,NE".
func ParseStatusList(s string) ([]Status, error) {
	var out []Status
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
