package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vrsandeep/vidl/internal/models"
)

// YtDlp downloads videos by running the yt-dlp executable.
type YtDlp struct {
	// Path is the yt-dlp executable, looked up in PATH when it has no separator.
	Path string
	// ExtraArgs are passed before the URL, e.g. the format selection.
	ExtraArgs []string
	// Timeout bounds a single download. Zero means no limit.
	Timeout time.Duration
}

// NewYtDlp creates a YtDlp runner.
func NewYtDlp(path string, extraArgs []string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, ExtraArgs: extraArgs}
}

// Args builds the yt-dlp command line for a video.
func (y *YtDlp) Args(v *models.Video, dir string) []string {
	args := []string{
		"--no-simulate",
		"--no-progress",
		"--no-warnings",
		"--print", "after_move:filepath",
		"-o", filepath.Join(dir, TargetName(v)+".%(ext)s"),
	}
	args = append(args, y.ExtraArgs...)
	return append(args, "--", v.URL)
}

// Download runs yt-dlp for v and returns the path it reported.
func (y *YtDlp) Download(ctx context.Context, v *models.Video, dir string) (string, error) {
	if v.URL == "" {
		return "", fmt.Errorf("video %d has no url: %w", v.ID, ErrDownloadFailed)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	if y.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, y.Path, y.Args(v, dir)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", y.Path, ErrToolMissing)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp interrupted: %w: %w", ErrDownloadFailed, ctx.Err())
		}
		return "", classifyFailure(err, stderr.String())
	}

	path := lastLine(stdout.String())
	if path == "" {
		return "", fmt.Errorf("yt-dlp reported no output file: %w", ErrDownloadFailed)
	}
	return path, nil
}

// classifyFailure maps yt-dlp's error output to a download error.
func classifyFailure(runErr error, stderr string) error {
	msg := lastLine(stderr)
	if msg == "" {
		msg = runErr.Error()
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "http error 404"),
		strings.Contains(lower, "does not exist"):
		return fmt.Errorf("%w: %s", ErrVideoGone, msg)
	case strings.Contains(lower, "http error 429"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "rate-limit"),
		strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	default:
		return fmt.Errorf("%w: %s", ErrDownloadFailed, msg)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
