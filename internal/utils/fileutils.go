package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempSuffix marks files that are being written by the conversion worker.
// The scanner treats files carrying it as not yet valid.
const TempSuffix = ".audiora-tmp"

// audioExtensions is the set of file extensions treated as importable audio.
var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".aac": true,
	".flac": true, ".ogg": true, ".opus": true, ".wav": true,
	".wma": true, ".aiff": true,
}

// IsAudioFile reports whether the path has a recognized audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsTempFile reports whether the path carries the conversion temp suffix or a
// common partial-download suffix.
func IsTempFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, TempSuffix) ||
		strings.HasSuffix(lower, ".part") ||
		strings.HasSuffix(lower, ".tmp") ||
		strings.HasSuffix(lower, ".crdownload")
}

// WaitForStableSize polls the file until its size is non-zero and unchanged
// across two consecutive polls, or maxAttempts polls have elapsed. This is the
// settling policy for files still being copied into the watch folder.
func WaitForStableSize(path string, interval time.Duration, maxAttempts int) (int64, error) {
	var lastSize int64 = -1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("failed to stat file during settling: %w", err)
		}
		size := info.Size()
		if size > 0 && size == lastSize {
			return size, nil
		}
		lastSize = size
		time.Sleep(interval)
	}
	return 0, fmt.Errorf("file %s did not settle after %d attempts", path, maxAttempts)
}

// SanitizePathComponent makes a metadata value safe to use as a single
// directory or file name element.
func SanitizePathComponent(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", " -", "*", "", "?", "",
		"\"", "'", "<", "", ">", "", "|", "-", "\x00", "",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

// MoveFile renames src to dst, falling back to copy+remove when rename fails
// (e.g. the watch folder and library live on different filesystems).
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	tmp := dst + TempSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize destination file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return os.Remove(src)
}
