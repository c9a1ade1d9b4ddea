package testsupport

import (
	"testing"

	"waggletag/internal/config"
	"waggletag/internal/store"
)

// MustOpenStore opens the label store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	labels, err := store.Open(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		labels.Close()
	})
	return labels
}
