// Package main hosts the waggletag CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the two halves of the workflow:
// ingest turns raw detection trees into the labeled snippet library,
// and serve exposes the labeling API the review UI talks to. Label
// inspection, environment status, repair passes, and configuration
// scaffolding round it out. Configuration resolution and logging setup
// are centralized here so subcommands stay declarative; the heavy
// lifting lives in the internal packages.
package main
