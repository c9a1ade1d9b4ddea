package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"waggletag/internal/config"
	"waggletag/internal/ingest"
	"waggletag/internal/label"
	"waggletag/internal/layout"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
	"waggletag/internal/testsupport"
	"waggletag/internal/transcode"
)

type fixture struct {
	cfg      *config.Config
	labels   *store.Store
	layout   *layout.Manager
	pipeline *ingest.Pipeline
	inputDir string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithStubbedFFmpeg()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	labels := testsupport.MustOpenStore(t, cfg)
	manager := layout.NewManager(cfg.Paths.OutputDir, logging.NewNop())
	encoder := transcode.NewFFmpeg(cfg.FFmpeg)

	pipeline, err := ingest.NewPipeline(cfg, labels, manager, encoder, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return &fixture{
		cfg:      cfg,
		labels:   labels,
		layout:   manager,
		pipeline: pipeline,
		inputDir: t.TempDir(),
	}
}

func (f *fixture) run(t *testing.T) ingest.Report {
	t.Helper()
	report, err := f.pipeline.Run(context.Background(), f.inputDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func TestRunIngestsTree(t *testing.T) {
	f := newFixture(t)
	ids := []snippet.Identity{
		{Date: "2021-06-01", Camera: 1, Detection: 1},
		{Date: "2021-06-01", Camera: 2, Detection: 7},
		{Date: "2021-06-02", Camera: 1, Detection: 3},
	}
	for _, id := range ids {
		testsupport.WriteSnippetSource(t, f.inputDir, id, nil)
	}

	report := f.run(t)
	if report.Ingested != len(ids) || report.Failed != 0 || report.SkippedExisting != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	for _, id := range ids {
		path := f.layout.PathFor(id, label.TagUntagged)
		if err := transcode.Validate(path, f.cfg.FFmpeg.MinOutputBytes); err != nil {
			t.Fatalf("video for %s invalid: %v", id.Key(), err)
		}
		exists, err := f.labels.Exists(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Fatalf("no store record for %s", id.Key())
		}
	}

	// Nothing lingers in staging once every snippet reached its bucket.
	leftovers, err := os.ReadDir(filepath.Join(f.cfg.Paths.OutputDir, ".staging"))
	if err == nil && len(leftovers) > 0 {
		t.Fatalf("staging dir should be empty, found %d entries", len(leftovers))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 42}
	testsupport.WriteSnippetSource(t, f.inputDir, id, nil)

	first := f.run(t)
	if first.Ingested != 1 {
		t.Fatalf("first run: %+v", first)
	}

	second := f.run(t)
	if second.Ingested != 0 || second.SkippedExisting != 1 || second.Failed != 0 {
		t.Fatalf("rerun should skip the existing snippet: %+v", second)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t, testsupport.WithStubbedFFmpeg(
		`case "$*" in *cam9*) echo "decode failed" >&2; exit 1;; esac`,
		testsupport.StubEncodeScript,
	))

	for detection := 1; detection <= 8; detection++ {
		testsupport.WriteSnippetSource(t, f.inputDir,
			snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: detection}, nil)
	}
	bad := []snippet.Identity{
		{Date: "2021-06-01", Camera: 9, Detection: 1},
		{Date: "2021-06-01", Camera: 9, Detection: 2},
	}
	for _, id := range bad {
		testsupport.WriteSnippetSource(t, f.inputDir, id, nil)
	}

	report := f.run(t)
	if report.Ingested != 8 || report.Failed != 2 {
		t.Fatalf("expected 8 ingested and 2 failed, got %+v", report)
	}
	for _, failure := range report.Failures {
		if failure.Identity.Camera != 9 {
			t.Fatalf("unexpected failure for %s: %v", failure.Identity.Key(), failure.Err)
		}
		if !errors.Is(failure.Err, services.ErrExternalTool) {
			t.Fatalf("failure should surface the encoder error, got %v", failure.Err)
		}
		if !failure.Recoverable {
			t.Fatalf("encoder failures should be marked retryable: %+v", failure)
		}
	}
}

func TestRunSeedsPredictedLabels(t *testing.T) {
	f := newFixture(t)
	f.cfg.Ingest.SeedPredicted = true

	id := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 5}
	testsupport.WriteSnippetSource(t, f.inputDir, id, &snippet.Metadata{
		WaggleID:            "w5",
		PredictedClassLabel: "round",
		Confidence:          0.88,
	})

	f.run(t)

	lbl, err := f.labels.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if lbl.DanceType != label.DanceRound || lbl.Source != label.SourceModelPredicted {
		t.Fatalf("seed not applied: %+v", lbl)
	}
	if lbl.TagStatus != label.TagUntagged {
		t.Fatalf("seed must not pre-answer tag visibility: %+v", lbl)
	}

	// A human decision survives reruns even with seeding enabled.
	if _, err := f.labels.Set(context.Background(), id, func(l *label.Label) error {
		l.DanceType = label.DanceTremble
		l.Source = label.SourceHumanCorrected
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	f.run(t)
	lbl, err = f.labels.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if lbl.DanceType != label.DanceTremble || lbl.Source != label.SourceHumanCorrected {
		t.Fatalf("rerun overwrote human label: %+v", lbl)
	}
}

func TestRunReplacesTruncatedVideo(t *testing.T) {
	f := newFixture(t)
	id := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 9}
	testsupport.WriteSnippetSource(t, f.inputDir, id, nil)

	// Simulate an interrupted earlier run that left garbage behind.
	stale := f.layout.PathFor(id, label.TagUntagged)
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("trunc"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := f.run(t)
	if report.Ingested != 1 || report.SkippedExisting != 0 {
		t.Fatalf("truncated video should be re-encoded: %+v", report)
	}
	if err := transcode.Validate(stale, f.cfg.FFmpeg.MinOutputBytes); err != nil {
		t.Fatalf("replacement video invalid: %v", err)
	}
}

func TestRunHonorsExistingLabelBucket(t *testing.T) {
	f := newFixture(t)
	id := snippet.Identity{Date: "2021-06-01", Camera: 2, Detection: 4}
	testsupport.WriteSnippetSource(t, f.inputDir, id, nil)

	// The snippet was labeled in a previous session but its video was lost.
	if _, err := f.labels.Set(context.Background(), id, func(l *label.Label) error {
		l.TagStatus = label.TagVisible
		l.Source = label.SourceHumanCorrected
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	f.run(t)

	path, status, err := f.layout.Locate(id)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if status != label.TagVisible {
		t.Fatalf("video landed in %q, want the labeled bucket", status)
	}
	if err := transcode.Validate(path, f.cfg.FFmpeg.MinOutputBytes); err != nil {
		t.Fatalf("video invalid: %v", err)
	}
}

func TestRunFiltersNonWaggleWhenConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.Ingest.WaggleOnly = true

	keep := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 1}
	drop := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 2}
	testsupport.WriteSnippetSource(t, f.inputDir, keep, &snippet.Metadata{PredictedClassLabel: "waggle"})
	testsupport.WriteSnippetSource(t, f.inputDir, drop, &snippet.Metadata{PredictedClassLabel: "round"})

	report := f.run(t)
	if report.Ingested != 1 {
		t.Fatalf("expected only the waggle snippet ingested: %+v", report)
	}
	if _, _, err := f.layout.Locate(drop); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("filtered snippet must not be encoded, got %v", err)
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteSnippetSource(t, f.inputDir,
		snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 1}, nil)

	other := flock.New(filepath.Join(f.cfg.Paths.OutputDir, ingest.LockFileName))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	if _, err := f.pipeline.Run(context.Background(), f.inputDir); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict while lock is held, got %v", err)
	}
}
