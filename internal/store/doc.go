// Package store persists snippet labels in SQLite and is the single source
// of truth for label state.
//
// Every successful Set is durably flushed before it returns, so dependent
// side effects (moving a video between buckets) can always be re-derived from
// the stored label after a crash. Mutations are serialized per identity;
// different identities never contend. Corrupt records surface CorruptError
// instead of silently defaulting, to avoid masking data loss.
//
// Schema changes are additive-only; bump schemaVersion in schema.go when the
// schema grows.
package store
