package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// WriteExecutable writes a shell script into dir and makes it executable.
// It is used to stand in for external tools such as yt-dlp. Tests calling it
// are skipped on Windows.
func WriteExecutable(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("Failed to write executable '%s': %v", name, err)
	}
	return filePath
}
