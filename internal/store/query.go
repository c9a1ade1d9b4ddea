package store

import (
	"context"
	"fmt"
	"strings"

	"waggletag/internal/label"
	"waggletag/internal/snippet"
)

// Entry pairs a snippet identity with its stored label.
type Entry struct {
	Identity snippet.Identity
	Label    label.Label
}

// Filter narrows query results. Empty slices match everything.
type Filter struct {
	TagStatuses []label.TagStatus
	DanceTypes  []label.DanceType
	Sources     []label.Source
	Date        string
	Camera      *int
}

// Matches reports whether an entry satisfies the filter.
func (f Filter) Matches(e Entry) bool {
	if f.Date != "" && e.Identity.Date != f.Date {
		return false
	}
	if f.Camera != nil && e.Identity.Camera != *f.Camera {
		return false
	}
	if len(f.TagStatuses) > 0 && !containsValue(f.TagStatuses, e.Label.TagStatus) {
		return false
	}
	if len(f.DanceTypes) > 0 && !containsValue(f.DanceTypes, e.Label.DanceType) {
		return false
	}
	if len(f.Sources) > 0 && !containsValue(f.Sources, e.Label.Source) {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, value T) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// All returns every entry ordered by identity key.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	return s.Query(ctx, Filter{})
}

// Query returns entries matching the filter, ordered by identity key so
// session cursors are stable across calls.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx = ensureContext(ctx)

	var (
		conditions []string
		args       []any
	)
	if filter.Date != "" {
		conditions = append(conditions, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Camera != nil {
		conditions = append(conditions, "camera = ?")
		args = append(args, *filter.Camera)
	}
	if clause, clauseArgs := inClause("tag_status", filter.TagStatuses); clause != "" {
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}
	if clause, clauseArgs := inClause("dance_type", filter.DanceTypes); clause != "" {
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}
	if clause, clauseArgs := inClause("source", filter.Sources); clause != "" {
		conditions = append(conditions, clause)
		args = append(args, clauseArgs...)
	}

	query := `SELECT date, camera, detection, tag_status, dance_type, source, created_at, updated_at FROM labels`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date, camera, detection"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id         snippet.Identity
			tagStatus  string
			danceType  string
			source     string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&id.Date, &id.Camera, &id.Detection, &tagStatus, &danceType, &source, &createdRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan label row: %w", err)
		}
		lbl, err := decodeLabel(id, tagStatus, danceType, source, createdRaw, updatedRaw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Identity: id, Label: lbl})
	}
	return entries, rows.Err()
}

// Stats returns a count of entries grouped by tag status.
func (s *Store) Stats(ctx context.Context) (map[label.TagStatus]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT tag_status, COUNT(1) FROM labels GROUP BY tag_status`)
	if err != nil {
		return nil, fmt.Errorf("label stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[label.TagStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		parsed, ok := label.ParseTagStatus(status)
		if !ok {
			return nil, &CorruptError{Key: "(aggregate)", Reason: fmt.Sprintf("unknown tag status %q", status)}
		}
		stats[parsed] = count
	}
	return stats, rows.Err()
}

func inClause[T ~string](column string, values []T) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, value := range values {
		placeholders[i] = "?"
		args[i] = string(value)
	}
	return column + " IN (" + strings.Join(placeholders, ",") + ")", args
}

func decodeLabel(id snippet.Identity, tagStatus, danceType, source, createdRaw, updatedRaw string) (label.Label, error) {
	status, ok := label.ParseTagStatus(tagStatus)
	if !ok {
		return label.Label{}, &CorruptError{Key: id.Key(), Reason: fmt.Sprintf("unknown tag status %q", tagStatus)}
	}
	dance, ok := label.ParseDanceType(danceType)
	if !ok {
		return label.Label{}, &CorruptError{Key: id.Key(), Reason: fmt.Sprintf("unknown dance type %q", danceType)}
	}
	src, ok := label.ParseSource(source)
	if !ok {
		return label.Label{}, &CorruptError{Key: id.Key(), Reason: fmt.Sprintf("unknown source %q", source)}
	}
	created, err := parseTimeString(createdRaw)
	if err != nil {
		return label.Label{}, &CorruptError{Key: id.Key(), Reason: fmt.Sprintf("unreadable created_at %q", createdRaw)}
	}
	updated, err := parseTimeString(updatedRaw)
	if err != nil {
		return label.Label{}, &CorruptError{Key: id.Key(), Reason: fmt.Sprintf("unreadable updated_at %q", updatedRaw)}
	}
	return label.Label{
		TagStatus: status,
		DanceType: dance,
		Source:    src,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}
