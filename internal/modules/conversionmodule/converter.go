package conversionmodule

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Converter produces a converted rendition of src at dst. Implementations
// must return promptly once ctx is cancelled and may report progress through
// the callback as a 0-100 value.
type Converter interface {
	Convert(ctx context.Context, src, dst string, durationSec int, progress func(pct int)) error
}

// FFmpegConverter shells out to ffmpeg for the actual transcode. The engine
// never decodes audio itself; ffmpeg owns that.
type FFmpegConverter struct {
	// Binary overrides the ffmpeg binary path. Empty means "ffmpeg" on PATH.
	Binary string
}

// Convert runs ffmpeg with -progress on stdout and translates out_time_ms
// lines into percentage callbacks. Cancelling ctx kills the process.
func (c *FFmpegConverter) Convert(ctx context.Context, src, dst string, durationSec int, progress func(pct int)) error {
	binary := c.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-i", src,
		"-map", "0:a",
		"-c:a", "aac",
		"-y",
		"-nostats",
		"-loglevel", "error",
		"-progress", "pipe:1",
		dst,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if durationSec <= 0 || progress == nil {
			continue
		}
		if value, ok := strings.CutPrefix(line, "out_time_ms="); ok {
			if us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				pct := int(us / 1000 / int64(durationSec) / 10) // us -> pct of total
				if pct > 100 {
					pct = 100
				}
				progress(pct)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}
