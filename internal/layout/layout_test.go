package layout_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"waggletag/internal/label"
	"waggletag/internal/layout"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

var testIdentity = snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 42}

func newManager(t *testing.T) *layout.Manager {
	t.Helper()
	return layout.NewManager(t.TempDir(), logging.NewNop())
}

func writeVideo(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPathForIsDeterministic(t *testing.T) {
	m := newManager(t)
	first := m.PathFor(testIdentity, label.TagUntagged)
	second := m.PathFor(testIdentity, label.TagUntagged)
	if first != second {
		t.Fatalf("PathFor not deterministic: %q vs %q", first, second)
	}
	want := filepath.Join(m.Root(), "2021-06-01", "cam1", "untagged", "2021-06-01_cam1_42.mp4")
	if first != want {
		t.Fatalf("unexpected path %q, want %q", first, want)
	}
	if m.PathFor(testIdentity, label.TagVisible) == first {
		t.Fatal("different statuses must yield different paths")
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	m := newManager(t)
	path := m.PathFor(testIdentity, label.TagUntagged)
	for i := 0; i < 2; i++ {
		if err := m.Materialize(path); err != nil {
			t.Fatalf("Materialize attempt %d: %v", i+1, err)
		}
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Fatalf("bucket dir missing: %v", err)
	}
}

func TestRelocateIsASingleMove(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	oldPath := m.PathFor(testIdentity, label.TagUntagged)
	writeVideo(t, oldPath)

	if err := m.Relocate(ctx, testIdentity, label.TagUntagged, label.TagVisible); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("old path should be gone, stat err=%v", err)
	}
	newPath := m.PathFor(testIdentity, label.TagVisible)
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("new path missing: %v", err)
	}

	// Retrying the same relocation is a no-op.
	if err := m.Relocate(ctx, testIdentity, label.TagUntagged, label.TagVisible); err != nil {
		t.Fatalf("retried Relocate: %v", err)
	}
}

func TestRelocateFindsStrayFile(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	// File sits in unclear, caller believes it is untagged.
	writeVideo(t, m.PathFor(testIdentity, label.TagUnclear))

	if err := m.Relocate(ctx, testIdentity, label.TagUntagged, label.TagVisible); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if _, err := os.Stat(m.PathFor(testIdentity, label.TagVisible)); err != nil {
		t.Fatalf("expected file in tag-visible bucket: %v", err)
	}
}

func TestRelocateMissingEverywhere(t *testing.T) {
	m := newManager(t)
	err := m.Relocate(context.Background(), testIdentity, label.TagUntagged, label.TagVisible)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocate(t *testing.T) {
	m := newManager(t)
	writeVideo(t, m.PathFor(testIdentity, label.TagNotVisible))

	path, status, err := m.Locate(testIdentity)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if status != label.TagNotVisible {
		t.Fatalf("unexpected status %q", status)
	}
	if path != m.PathFor(testIdentity, label.TagNotVisible) {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestReconcileMovesMismatchedFiles(t *testing.T) {
	dir := t.TempDir()
	m := layout.NewManager(dir, logging.NewNop())
	ctx := context.Background()

	labels, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer labels.Close()

	// Stored label says tag-visible but the file still sits in untagged,
	// as if the process crashed between Set and Relocate.
	if _, err := labels.Set(ctx, testIdentity, func(l *label.Label) error {
		l.TagStatus = label.TagVisible
		l.Source = label.SourceHumanCorrected
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	writeVideo(t, m.PathFor(testIdentity, label.TagUntagged))

	missing := snippet.Identity{Date: "2021-06-02", Camera: 2, Detection: 7}
	if _, _, err := labels.EnsureDefault(ctx, missing, nil); err != nil {
		t.Fatal(err)
	}

	report, err := m.Reconcile(ctx, labels)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Checked != 2 || report.Moved != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Missing) != 1 || report.Missing[0] != missing.Key() {
		t.Fatalf("unexpected missing list %+v", report.Missing)
	}
	if _, err := os.Stat(m.PathFor(testIdentity, label.TagVisible)); err != nil {
		t.Fatalf("file not healed into tag-visible bucket: %v", err)
	}
}

func TestReconcileAdoptsUnregisteredVideos(t *testing.T) {
	dir := t.TempDir()
	m := layout.NewManager(dir, logging.NewNop())
	ctx := context.Background()

	labels, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer labels.Close()

	// A video with no label record, as if the database was lost. Its tag
	// status is recoverable from the bucket it sits in.
	writeVideo(t, m.PathFor(testIdentity, label.TagVisible))

	// Files outside a recognized bucket stay untouched.
	strayPath := filepath.Join(dir, "2021-06-01", "cam1", "scratch", "2021-06-01_cam1_99.mp4")
	writeVideo(t, strayPath)

	report, err := m.Reconcile(ctx, labels)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Adopted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	lbl, err := labels.Get(ctx, testIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if lbl.TagStatus != label.TagVisible {
		t.Fatalf("adopted label should carry the bucket status, got %q", lbl.TagStatus)
	}
	if lbl.DanceType != label.DanceUnknown || lbl.Source != label.SourceUnset {
		t.Fatalf("adoption should only set the tag status, got %+v", lbl)
	}

	// A second pass changes nothing.
	report, err = m.Reconcile(ctx, labels)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if report.Adopted != 0 || report.Moved != 0 {
		t.Fatalf("second pass should be a no-op, got %+v", report)
	}
	if _, err := os.Stat(strayPath); err != nil {
		t.Fatalf("stray file should be untouched: %v", err)
	}
}
