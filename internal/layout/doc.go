// Package layout owns the canonical output directory tree. Encoded snippet
// paths are a pure function of snippet identity and tag status, so the
// directory a video lives in is always a derived view of the label store and
// relabeling is a plain file move. Buckets are created lazily and
// idempotently.
package layout
