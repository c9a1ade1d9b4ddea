// Package preflight validates the runtime environment before a run:
// encoder availability, directory permissions, and label store health.
// Commands surface failed checks before doing any work.
package preflight
