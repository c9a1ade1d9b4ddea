// Package label defines the closed annotation vocabulary for snippets: tag
// visibility status, dance type, and provenance, plus the Label record the
// store persists.
//
// External inputs (classifier output, API payloads) pass through the Absorb
// helpers, which map unrecognized values onto the explicit unclear/unknown
// members instead of letting arbitrary strings into the core.
package label
