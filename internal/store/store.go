package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"waggletag/internal/label"
	"waggletag/internal/snippet"
)

// DatabaseName is the label store filename inside the output directory.
const DatabaseName = "labels.db"

// Store is the durable mapping from snippet identity to label, backed by
// SQLite at the output root. It is the single source of truth: directory
// buckets are a derived view reconciled from it.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open initializes or connects to the label database inside outputDir,
// creating the directory when absent.
func Open(outputDir string) (*Store, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	dbPath := filepath.Join(outputDir, DatabaseName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, locks: make(map[string]*sync.Mutex)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the database.
func (s *Store) Path() string {
	return s.path
}

// Get returns the label for an identity, defaulting when absent. Absence is
// not an error; a record with undecodable fields is.
func (s *Store) Get(ctx context.Context, id snippet.Identity) (label.Label, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT tag_status, dance_type, source, created_at, updated_at
         FROM labels WHERE date = ? AND camera = ? AND detection = ?`,
		id.Date, id.Camera, id.Detection,
	)
	lbl, err := scanLabel(id, row)
	if errors.Is(err, sql.ErrNoRows) {
		return label.Default(), nil
	}
	if err != nil {
		return label.Label{}, err
	}
	return lbl, nil
}

// Exists reports whether a persisted record exists for the identity.
func (s *Store) Exists(ctx context.Context, id snippet.Identity) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM labels WHERE date = ? AND camera = ? AND detection = ?`,
		id.Date, id.Camera, id.Detection,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check label existence: %w", err)
	}
	return count > 0, nil
}

// EnsureDefault inserts a label record for the identity if none exists. When
// seed is non-nil its values are used instead of the bare defaults (classifier
// pre-population). Returns the stored label and whether a record was created.
// Re-invocation never overwrites an existing record, so seeding stays
// idempotent.
func (s *Store) EnsureDefault(ctx context.Context, id snippet.Identity, seed *label.Label) (label.Label, bool, error) {
	ctx = ensureContext(ctx)
	unlock := s.lockIdentity(id)
	defer unlock()

	initial := label.Default()
	if seed != nil {
		initial = *seed
	}
	now := time.Now().UTC()
	initial.CreatedAt = now
	initial.UpdatedAt = now

	res, err := s.execWithRetry(ctx,
		`INSERT INTO labels (date, camera, detection, tag_status, dance_type, source, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (date, camera, detection) DO NOTHING`,
		id.Date, id.Camera, id.Detection,
		string(initial.TagStatus), string(initial.DanceType), string(initial.Source),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return label.Label{}, false, fmt.Errorf("ensure default label: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return label.Label{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return initial, true, nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return label.Label{}, false, err
	}
	return current, false, nil
}

// Set applies a read-modify-write mutation to the identity's label. The
// mutation runs against the current stored value (or the default when no
// record exists yet), and the result is durably flushed before Set returns.
// Mutations on the same identity are serialized; different identities do not
// contend.
func (s *Store) Set(ctx context.Context, id snippet.Identity, mutate func(*label.Label) error) (label.Label, error) {
	if mutate == nil {
		return label.Label{}, errors.New("mutate func is nil")
	}
	ctx = ensureContext(ctx)
	unlock := s.lockIdentity(id)
	defer unlock()

	var result label.Label
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin label tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT tag_status, dance_type, source, created_at, updated_at
             FROM labels WHERE date = ? AND camera = ? AND detection = ?`,
			id.Date, id.Camera, id.Detection,
		)
		current, err := scanLabel(id, row)
		created := false
		if errors.Is(err, sql.ErrNoRows) {
			current = label.Default()
			current.CreatedAt = time.Now().UTC()
			created = true
		} else if err != nil {
			return err
		}

		next := current
		if err := mutate(&next); err != nil {
			return err
		}
		if !validStored(next) {
			return fmt.Errorf("mutation produced invalid label %+v", next)
		}
		next.CreatedAt = current.CreatedAt
		if created {
			next.CreatedAt = time.Now().UTC()
		}
		next.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO labels (date, camera, detection, tag_status, dance_type, source, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (date, camera, detection) DO UPDATE SET
                 tag_status = excluded.tag_status,
                 dance_type = excluded.dance_type,
                 source = excluded.source,
                 updated_at = excluded.updated_at`,
			id.Date, id.Camera, id.Detection,
			string(next.TagStatus), string(next.DanceType), string(next.Source),
			next.CreatedAt.Format(time.RFC3339Nano), next.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("write label: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit label: %w", err)
		}
		result = next
		return nil
	})
	if err != nil {
		return label.Label{}, err
	}
	return result, nil
}

func (s *Store) lockIdentity(id snippet.Identity) func() {
	key := id.Key()
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func validStored(lbl label.Label) bool {
	if _, ok := label.ParseTagStatus(string(lbl.TagStatus)); !ok {
		return false
	}
	if _, ok := label.ParseDanceType(string(lbl.DanceType)); !ok {
		return false
	}
	if _, ok := label.ParseSource(string(lbl.Source)); !ok {
		return false
	}
	return true
}

func scanLabel(id snippet.Identity, scanner interface{ Scan(dest ...any) error }) (label.Label, error) {
	var (
		tagStatus  string
		danceType  string
		source     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&tagStatus, &danceType, &source, &createdRaw, &updatedRaw); err != nil {
		return label.Label{}, err
	}
	return decodeLabel(id, tagStatus, danceType, source, createdRaw, updatedRaw)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
