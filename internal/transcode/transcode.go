package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"waggletag/internal/config"
	"waggletag/internal/logging"
	"waggletag/internal/services"
)

var commandContext = exec.CommandContext

// Request describes a single snippet encode.
type Request struct {
	// Source is either an animated PNG file or a directory holding a
	// numbered PNG frame sequence.
	Source string
	// Destination is the final MP4 path. The encode writes to a temp
	// file beside it and renames into place on success.
	Destination string
	// SourceIsSequence marks Source as a frame-sequence directory.
	SourceIsSequence bool
}

// Client defines snippet encoding behaviour.
type Client interface {
	Encode(ctx context.Context, req Request) error
}

// Option configures the ffmpeg client.
type Option func(*FFmpeg)

// WithLogger attaches a logger for per-encode diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// FFmpeg wraps the ffmpeg command-line encoder.
type FFmpeg struct {
	cfg    config.FFmpeg
	logger *slog.Logger
}

// NewFFmpeg constructs an ffmpeg client from configuration.
func NewFFmpeg(cfg config.FFmpeg, opts ...Option) *FFmpeg {
	client := &FFmpeg{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Encode runs ffmpeg for the request. The output appears at
// req.Destination only after the encoded file passed validation, so an
// interrupted encode never leaves a readable file at the final path.
func (f *FFmpeg) Encode(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Source) == "" {
		return services.Wrap(services.ErrValidation, "transcode", "encode", "source path required", nil)
	}
	if strings.TrimSpace(req.Destination) == "" {
		return services.Wrap(services.ErrValidation, "transcode", "encode", "destination path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "encode", "create destination directory", err)
	}

	tempPath := req.Destination + ".partial"
	defer os.Remove(tempPath)

	runCtx := ctx
	if f.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(f.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := f.buildArgs(req, tempPath)
	f.logger.Debug("starting encode",
		logging.String("source", req.Source),
		logging.String("destination", req.Destination))

	cmd := commandContext(runCtx, f.cfg.Binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "transcode", "encode",
				fmt.Sprintf("ffmpeg exceeded %ds timeout", f.cfg.TimeoutSeconds), runErr)
		}
		detail := stderrTail(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}
		return services.Wrap(services.ErrExternalTool, "transcode", "encode", detail, runErr)
	}

	if err := Validate(tempPath, f.cfg.MinOutputBytes); err != nil {
		return err
	}
	if err := os.Rename(tempPath, req.Destination); err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "encode", "finalize output", err)
	}

	f.logger.Debug("encode complete",
		logging.String("destination", req.Destination),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// buildArgs mirrors the settings the labeling workflow has always used
// for snippet playback: H.264 at a visually lossless CRF with a pixel
// format every browser decodes.
func (f *FFmpeg) buildArgs(req Request, tempPath string) []string {
	args := []string{"-y", "-nostdin", "-hide_banner"}
	if req.SourceIsSequence {
		args = append(args,
			"-f", "image2",
			"-pattern_type", "glob",
			"-i", filepath.Join(req.Source, "*.png"),
		)
	} else {
		args = append(args, "-i", req.Source)
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(f.cfg.CRF),
		"-preset", f.cfg.Preset,
		"-pix_fmt", f.cfg.PixelFormat,
		"-f", "mp4",
		tempPath,
	)
	return args
}

// stderrTail keeps the last few lines of ffmpeg output, which is where
// the actual failure reason lands.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	const keep = 5
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		if s := strings.TrimSpace(line); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return strings.Join(trimmed, "; ")
}
