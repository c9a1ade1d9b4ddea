// Package ingest drives the preprocessing pipeline: it scans a raw
// detection tree, encodes each snippet to MP4, places the video in the
// canonical layout, and registers the snippet in the label store. Runs
// are locked per output directory and safe to rerun after interruption.
package ingest
