package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"waggletag/internal/label"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

var testIdentity = snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 42}

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetDefaultsWhenAbsent(t *testing.T) {
	s := openStore(t, t.TempDir())
	lbl, err := s.Get(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !lbl.IsDefault() {
		t.Fatalf("expected default label, got %+v", lbl)
	}
}

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	_, created, err := s.EnsureDefault(ctx, testIdentity, nil)
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if !created {
		t.Fatal("first EnsureDefault should create")
	}

	seed := label.Default()
	seed.DanceType = label.DanceWaggle
	seed.Source = label.SourceModelPredicted
	got, created, err := s.EnsureDefault(ctx, testIdentity, &seed)
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if created {
		t.Fatal("second EnsureDefault should not create")
	}
	if got.DanceType != label.DanceUnknown {
		t.Fatalf("existing record should win over seed, got %+v", got)
	}
}

func TestEnsureDefaultWithSeed(t *testing.T) {
	s := openStore(t, t.TempDir())
	seed := label.Default()
	seed.DanceType = label.DanceWaggle
	seed.Source = label.SourceModelPredicted

	got, created, err := s.EnsureDefault(context.Background(), testIdentity, &seed)
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if !created {
		t.Fatal("expected creation")
	}
	if got.DanceType != label.DanceWaggle || got.Source != label.SourceModelPredicted {
		t.Fatalf("seed not applied: %+v", got)
	}
}

func TestSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()

	_, err := s.Set(ctx, testIdentity, func(l *label.Label) error {
		l.TagStatus = label.TagVisible
		l.DanceType = label.DanceWaggle
		l.Source = label.SourceHumanCorrected
		return nil
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openStore(t, dir)
	lbl, err := reopened.Get(ctx, testIdentity)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if lbl.TagStatus != label.TagVisible || lbl.DanceType != label.DanceWaggle || lbl.Source != label.SourceHumanCorrected {
		t.Fatalf("label lost across reopen: %+v", lbl)
	}
}

func TestSetMutationErrorLeavesRecordUntouched(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	if _, _, err := s.EnsureDefault(ctx, testIdentity, nil); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if _, err := s.Set(ctx, testIdentity, func(l *label.Label) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	lbl, err := s.Get(ctx, testIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if !lbl.IsDefault() {
		t.Fatalf("failed mutation must not change the record: %+v", lbl)
	}
}

func TestSetRejectsInvalidLabel(t *testing.T) {
	s := openStore(t, t.TempDir())
	_, err := s.Set(context.Background(), testIdentity, func(l *label.Label) error {
		l.TagStatus = "nonsense"
		return nil
	})
	if err == nil {
		t.Fatal("expected invalid label to be rejected")
	}
}

func TestCorruptRecordSurfaces(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()
	if _, _, err := s.EnsureDefault(ctx, testIdentity, nil); err != nil {
		t.Fatal(err)
	}

	// Corrupt the record behind the store's back.
	db, err := sql.Open("sqlite", filepath.Join(dir, store.DatabaseName))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`UPDATE labels SET tag_status = 'banana' WHERE detection = 42`); err != nil {
		t.Fatal(err)
	}

	_, err = s.Get(ctx, testIdentity)
	var corrupt *store.CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if corrupt.Key != testIdentity.Key() {
		t.Fatalf("unexpected corrupt key %q", corrupt.Key)
	}
}

func TestCorruptTimestampSurfaces(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()
	if _, _, err := s.EnsureDefault(ctx, testIdentity, nil); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, store.DatabaseName))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`UPDATE labels SET updated_at = 'yesterday-ish' WHERE detection = 42`); err != nil {
		t.Fatal(err)
	}

	_, err = s.Get(ctx, testIdentity)
	var corrupt *store.CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
	if !strings.Contains(corrupt.Reason, "updated_at") {
		t.Fatalf("unexpected corrupt reason %q", corrupt.Reason)
	}
}

func TestQueryFilters(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	identities := []snippet.Identity{
		{Date: "2021-06-01", Camera: 1, Detection: 1},
		{Date: "2021-06-01", Camera: 1, Detection: 2},
		{Date: "2021-06-02", Camera: 2, Detection: 3},
	}
	for _, id := range identities {
		if _, _, err := s.EnsureDefault(ctx, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Set(ctx, identities[1], func(l *label.Label) error {
		l.TagStatus = label.TagVisible
		l.DanceType = label.DanceWaggle
		l.Source = label.SourceHumanCorrected
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	visible, err := s.Query(ctx, store.Filter{TagStatuses: []label.TagStatus{label.TagVisible}})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 1 || visible[0].Identity != identities[1] {
		t.Fatalf("unexpected visible entries %+v", visible)
	}

	camera := 1
	camOne, err := s.Query(ctx, store.Filter{Camera: &camera})
	if err != nil {
		t.Fatal(err)
	}
	if len(camOne) != 2 {
		t.Fatalf("expected 2 camera-1 entries, got %d", len(camOne))
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].Identity.Less(all[i].Identity) {
			t.Fatalf("entries not ordered: %v before %v", all[i-1].Identity, all[i].Identity)
		}
	}
}

func TestStats(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()
	for det := 1; det <= 3; det++ {
		id := snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: det}
		if _, _, err := s.EnsureDefault(ctx, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats[label.TagUntagged] != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestConcurrentSetsSerializePerIdentity(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Set(ctx, testIdentity, func(l *label.Label) error {
				l.DanceType = label.DanceWaggle
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Set failed: %v", err)
		}
	}

	lbl, err := s.Get(ctx, testIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if lbl.DanceType != label.DanceWaggle {
		t.Fatalf("unexpected final label %+v", lbl)
	}
}
