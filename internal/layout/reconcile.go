package layout

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"waggletag/internal/label"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

// ReconcileReport summarizes a repair pass.
type ReconcileReport struct {
	Checked int
	Moved   int
	Adopted int
	Missing []string
}

// Reconcile aligns the on-disk bucket of every labeled snippet with its
// stored tag status. The store is the source of truth; files found in the
// wrong bucket are moved, files missing everywhere are reported. Used both as
// an explicit repair pass and to self-heal after a crash between a durable
// label write and its dependent relocation.
func (m *Manager) Reconcile(ctx context.Context, labels *store.Store) (ReconcileReport, error) {
	logger := logging.WithContext(ctx, m.logger)
	report := ReconcileReport{}

	entries, err := labels.All(ctx)
	if err != nil {
		return report, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		expected := m.PathFor(entry.Identity, entry.Label.TagStatus)
		actual, actualStatus, err := m.Locate(entry.Identity)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				report.Missing = append(report.Missing, entry.Identity.Key())
				continue
			}
			return report, err
		}
		if actual == expected {
			continue
		}
		if err := m.Relocate(ctx, entry.Identity, actualStatus, entry.Label.TagStatus); err != nil {
			return report, err
		}
		report.Moved++
	}

	adopted, err := m.adoptUnregistered(ctx, labels)
	report.Adopted = adopted
	if err != nil {
		return report, err
	}

	if report.Moved > 0 || report.Adopted > 0 || len(report.Missing) > 0 {
		logger.Info("reconcile pass finished",
			logging.Int("checked", report.Checked),
			logging.Int("moved", report.Moved),
			logging.Int("adopted", report.Adopted),
			logging.Int("missing", len(report.Missing)),
		)
	}
	return report, nil
}

// adoptUnregistered sweeps the on-disk tree for videos that have no store
// record and registers each one, re-deriving its tag status from the bucket
// it sits in. Files outside a recognized bucket are left alone.
func (m *Manager) adoptUnregistered(ctx context.Context, labels *store.Store) (int, error) {
	logger := logging.WithContext(ctx, m.logger)
	adopted := 0

	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || filepath.Ext(path) != VideoExtension {
			return nil
		}
		status, ok := label.FromBucket(filepath.Base(filepath.Dir(path)))
		if !ok {
			return nil
		}
		id, perr := snippet.ParseKey(strings.TrimSuffix(filepath.Base(path), VideoExtension))
		if perr != nil {
			return nil
		}
		if m.PathFor(id, status) != path {
			logger.Warn("video key disagrees with its directory, leaving it alone",
				logging.String("path", path))
			return nil
		}
		seed := label.Default()
		seed.TagStatus = status
		_, created, serr := labels.EnsureDefault(ctx, id, &seed)
		if serr != nil {
			return serr
		}
		if created {
			adopted++
			logger.Info("adopted unregistered video",
				logging.String(logging.FieldSnippet, id.Key()),
				logging.String(logging.FieldBucket, label.Bucket(status)))
		}
		return nil
	})
	if err != nil {
		return adopted, services.Wrap(services.ErrTransient, "layout", "reconcile", "sweep for unregistered videos", err)
	}
	return adopted, nil
}
