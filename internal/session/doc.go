// Package session coordinates one reviewer's pass over the snippet
// library: a cursor over a filtered ordered identity list, video
// loading with self-healing placement, and serialized label saves.
package session
