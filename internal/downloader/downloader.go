package downloader

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vrsandeep/vidl/internal/models"
)

var (
	// ErrVideoGone means the remote video no longer exists or is private.
	ErrVideoGone = errors.New("video is gone")
	// ErrRateLimited means the remote refused the download for now.
	ErrRateLimited = errors.New("download rate limited")
	// ErrDownloadFailed covers every other downloader failure.
	ErrDownloadFailed = errors.New("download failed")
	// ErrToolMissing means the downloader executable could not be started.
	ErrToolMissing = errors.New("downloader executable not found")
)

// Downloader fetches the media of one video into dir and returns the path of
// the file it wrote.
type Downloader interface {
	Download(ctx context.Context, v *models.Video, dir string) (string, error)
}

// DownloaderFunc adapts a plain function to the Downloader interface.
type DownloaderFunc func(ctx context.Context, v *models.Video, dir string) (string, error)

func (f DownloaderFunc) Download(ctx context.Context, v *models.Video, dir string) (string, error) {
	return f(ctx, v, dir)
}

var invalidFilenameChars = regexp.MustCompile(`[\x00\\/:*?"<>|%]`)

// SanitizeFilename makes a title safe to use as a file name on common
// filesystems. Leading dots and hyphens are removed so the result is neither
// hidden nor mistaken for a command line flag.
func SanitizeFilename(filename string) string {
	safe := invalidFilenameChars.ReplaceAllString(filename, "-")
	safe = strings.TrimSpace(safe)

	for strings.HasPrefix(safe, ".") || strings.HasPrefix(safe, "-") {
		safe = safe[1:]
	}
	if safe == "" {
		safe = "untitled"
	}
	if len(safe) > 150 {
		safe = strings.ToValidUTF8(safe[:150], "")
	}
	return safe
}

// TargetName is the file name, without extension, a video is downloaded to.
// The id prefix keeps it unique even when two videos share a title.
func TargetName(v *models.Video) string {
	return fmt.Sprintf("%06d_%s", v.ID, SanitizeFilename(v.Title))
}
