package deps

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// FFmpegVersion resolves the configured ffmpeg binary and reports its
// version banner. A binary that resolves but cannot execute is treated
// as unavailable, since LookPath alone misses broken installs.
func FFmpegVersion(ctx context.Context, binary string) Status {
	status := Status{
		Name:        "FFmpeg",
		Command:     strings.TrimSpace(binary),
		Description: "Required for snippet encoding",
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = "binary not found"
		return status
	}
	status.Command = resolved

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, resolved, "-version")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		status.Detail = "binary found but not runnable"
		return status
	}

	status.Available = true
	if line, _, ok := strings.Cut(out.String(), "\n"); ok {
		status.Detail = strings.TrimSpace(line)
	}
	return status
}
