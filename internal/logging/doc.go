// Package logging wires slog for waggletag: a console handler for humans, a
// JSON handler for machines, attribute helpers, and context-derived fields
// (snippet key, component, correlation id) so every component logs the same
// shape.
package logging
