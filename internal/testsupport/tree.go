package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"waggletag/internal/snippet"
)

// WriteSnippetSource lays down a raw detection directory for id under
// inputDir: a frames.apng plus, when meta is non-nil, a waggle.json.
// Returns the detection directory path.
func WriteSnippetSource(t testing.TB, inputDir string, id snippet.Identity, meta *snippet.Metadata) string {
	t.Helper()

	dir := filepath.Join(inputDir, id.Date, "cam"+strconv.Itoa(id.Camera), strconv.Itoa(id.Detection))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir detection dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "frames.apng"), []byte("apng-frames"), 0o644); err != nil {
		t.Fatalf("write frames: %v", err)
	}
	if meta != nil {
		payload, err := json.Marshal(meta)
		if err != nil {
			t.Fatalf("marshal metadata: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "waggle.json"), payload, 0o644); err != nil {
			t.Fatalf("write metadata: %v", err)
		}
	}
	return dir
}

// WriteFakeMP4 writes a file that passes transcode validation: an ftyp
// header followed by padding.
func WriteFakeMP4(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir video dir: %v", err)
	}
	payload := append([]byte{0, 0, 0, 0x20}, []byte("ftypisom")...)
	payload = append(payload, make([]byte, 56)...)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fake mp4: %v", err)
	}
}
