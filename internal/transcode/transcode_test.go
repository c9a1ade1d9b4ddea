package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"waggletag/internal/config"
	"waggletag/internal/services"
	"waggletag/internal/transcode"
)

// stubFFmpeg writes an executable script named ffmpeg and returns a
// config pointing at it. The script body decides the stub's behaviour.
func stubFFmpeg(t *testing.T, body string) config.FFmpeg {
	t.Helper()
	binDir := t.TempDir()
	script := "#!/bin/sh\n" + body + "\n"
	path := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg := config.Default().FFmpeg
	cfg.Binary = path
	cfg.MinOutputBytes = 32
	return cfg
}

// lastArgOutput makes the stub behave like ffmpeg: the final argument
// is the output path.
const lastArgOutput = `for arg in "$@"; do out="$arg"; done
printf '\0\0\0\040ftypisom' > "$out"
head -c 56 /dev/zero >> "$out"`

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "frames.apng")
	if err := os.WriteFile(src, []byte("apng"), 0o644); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestEncodeWritesValidatedOutput(t *testing.T) {
	cfg := stubFFmpeg(t, lastArgOutput)
	dest := filepath.Join(t.TempDir(), "2021-06-01", "cam1", "untagged", "2021-06-01_cam1_42.mp4")

	client := transcode.NewFFmpeg(cfg)
	err := client.Encode(context.Background(), transcode.Request{
		Source:      writeSource(t),
		Destination: dest,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() < cfg.MinOutputBytes {
		t.Fatalf("output too small: %d bytes", info.Size())
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Fatal("partial file left behind")
	}
}

func TestEncodeSurfacesStderrOnFailure(t *testing.T) {
	cfg := stubFFmpeg(t, `echo "Unknown decoder 'nope'" >&2; exit 1`)
	dest := filepath.Join(t.TempDir(), "out.mp4")

	client := transcode.NewFFmpeg(cfg)
	err := client.Encode(context.Background(), transcode.Request{
		Source:      writeSource(t),
		Destination: dest,
	})
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown decoder") {
		t.Fatalf("stderr detail missing from error: %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("failed encode must not leave output at destination")
	}
}

func TestEncodeRejectsUndersizedOutput(t *testing.T) {
	cfg := stubFFmpeg(t, `for arg in "$@"; do out="$arg"; done
printf '\0\0\0\040ftyp' > "$out"`)
	dest := filepath.Join(t.TempDir(), "out.mp4")

	client := transcode.NewFFmpeg(cfg)
	err := client.Encode(context.Background(), transcode.Request{
		Source:      writeSource(t),
		Destination: dest,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("invalid encode must not reach destination")
	}
}

func TestEncodeTimesOut(t *testing.T) {
	cfg := stubFFmpeg(t, "sleep 10")
	cfg.TimeoutSeconds = 1
	dest := filepath.Join(t.TempDir(), "out.mp4")

	client := transcode.NewFFmpeg(cfg)
	err := client.Encode(context.Background(), transcode.Request{
		Source:      writeSource(t),
		Destination: dest,
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestEncodeRequiresPaths(t *testing.T) {
	client := transcode.NewFFmpeg(config.Default().FFmpeg)
	if err := client.Encode(context.Background(), transcode.Request{Destination: "x.mp4"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing source, got %v", err)
	}
	if err := client.Encode(context.Background(), transcode.Request{Source: "a.apng"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing destination, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.mp4")
	payload := append([]byte{0, 0, 0, 0x20}, []byte("ftypisom")...)
	payload = append(payload, make([]byte, 56)...)
	if err := os.WriteFile(good, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := transcode.Validate(good, 32); err != nil {
		t.Fatalf("valid file rejected: %v", err)
	}

	if err := transcode.Validate(filepath.Join(dir, "missing.mp4"), 32); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}

	small := filepath.Join(dir, "small.mp4")
	if err := os.WriteFile(small, payload[:16], 0o644); err != nil {
		t.Fatal(err)
	}
	if err := transcode.Validate(small, 32); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for short file, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.mp4")
	if err := os.WriteFile(garbage, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := transcode.Validate(garbage, 32); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad header, got %v", err)
	}
}
