// Package services defines shared utilities consumed by the ingestion
// pipeline, the label session controller, and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp snippet keys, component names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across components.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform.
package services
