package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"waggletag/internal/fileutil"
	"waggletag/internal/label"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
)

// VideoExtension is the container extension for encoded snippets.
const VideoExtension = ".mp4"

// Manager derives canonical output paths from snippet identity and label
// bucket, and moves encoded snippets between buckets. The path is a pure
// function of (identity, tag status): relabeling is always a rename, never a
// re-encode.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager constructs a layout manager rooted at the output directory.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{root: root, logger: logging.NewComponentLogger(logger, "layout")}
}

// Root returns the output directory the manager operates on.
func (m *Manager) Root() string {
	return m.root
}

// PathFor returns the canonical path for a snippet's encoded video in the
// bucket for the given tag status.
func (m *Manager) PathFor(id snippet.Identity, status label.TagStatus) string {
	return filepath.Join(
		m.root,
		id.Date,
		fmt.Sprintf("cam%d", id.Camera),
		label.Bucket(status),
		id.Key()+VideoExtension,
	)
}

// Materialize creates the parent directories for a canonical path. It is
// idempotent and safe under concurrent creation attempts.
func (m *Manager) Materialize(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "layout", "materialize", "failed to create bucket directory", err)
	}
	return nil
}

// Locate searches every bucket for the snippet's video and returns the path
// and the bucket it was found in. Returns services.ErrNotFound when the
// snippet has no file in any bucket.
func (m *Manager) Locate(id snippet.Identity) (string, label.TagStatus, error) {
	for _, status := range label.AllTagStatuses() {
		candidate := m.PathFor(id, status)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, status, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", "", services.Wrap(services.ErrTransient, "layout", "locate", "failed to stat candidate path", err)
		}
	}
	return "", "", services.Wrap(services.ErrNotFound, "layout", "locate", fmt.Sprintf("no video found for %s", id.Key()), nil)
}

// Relocate moves a snippet's video from the old bucket to the new one. The
// move is idempotent: when the file already sits in the new bucket, nothing
// happens, so a retried relocation after a crash converges.
func (m *Manager) Relocate(ctx context.Context, id snippet.Identity, oldStatus, newStatus label.TagStatus) error {
	logger := logging.WithContext(ctx, m.logger)
	newPath := m.PathFor(id, newStatus)
	if _, err := os.Stat(newPath); err == nil {
		return nil
	}

	oldPath := m.PathFor(id, oldStatus)
	if _, err := os.Stat(oldPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrTransient, "layout", "relocate", "failed to stat source", err)
		}
		// Not in the expected bucket; the label may have moved ahead of
		// the file. Search everywhere before giving up.
		found, _, locateErr := m.Locate(id)
		if locateErr != nil {
			return locateErr
		}
		oldPath = found
	}

	if err := m.Materialize(newPath); err != nil {
		return err
	}
	if err := fileutil.MoveFile(oldPath, newPath); err != nil {
		return services.Wrap(services.ErrTransient, "layout", "relocate", "failed to move video between buckets", err)
	}
	logger.Info("relocated snippet",
		logging.String(logging.FieldSnippet, id.Key()),
		logging.String("from", label.Bucket(oldStatus)),
		logging.String(logging.FieldBucket, label.Bucket(newStatus)),
	)
	return nil
}

// Place moves a freshly encoded file into the bucket for the given status.
func (m *Manager) Place(id snippet.Identity, status label.TagStatus, sourcePath string) (string, error) {
	target := m.PathFor(id, status)
	if err := m.Materialize(target); err != nil {
		return "", err
	}
	if err := fileutil.MoveFile(sourcePath, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "layout", "place", "failed to move encoded video into bucket", err)
	}
	return target, nil
}
