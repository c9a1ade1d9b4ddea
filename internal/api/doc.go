// Package api serves the labeling front-end contract over HTTP:
// filtered snippet listings, per-snippet loads, label saves, and video
// delivery. Responses are JSON except for the video endpoint.
package api
