package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"waggletag/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.FFmpeg.MinOutputBytes = 32
	cfgVal.FFmpeg.TimeoutSeconds = 30
	cfgVal.Ingest.Workers = 2
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers overrides the ingestion worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.Workers = n
	}
}

// WithStubbedFFmpeg writes an executable ffmpeg stand-in that produces a
// small valid MP4 at the final argument path, and points the config at it.
// An optional body overrides the default behaviour.
func WithStubbedFFmpeg(body ...string) ConfigOption {
	return func(b *configBuilder) {
		script := "#!/bin/sh\n" + StubEncodeScript + "\n"
		if len(body) > 0 {
			script = "#!/bin/sh\n"
			for _, line := range body {
				script += line + "\n"
			}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write ffmpeg stub: %v", err)
		}
		b.cfg.FFmpeg.Binary = target
	}
}

// StubEncodeScript is the default stub body: treat the last argument as
// the output path and write a minimal MP4 there.
const StubEncodeScript = `for arg in "$@"; do out="$arg"; done
printf '\0\0\0\040ftypisom' > "$out"
head -c 56 /dev/zero >> "$out"`

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
