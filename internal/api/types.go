package api

import (
	"time"

	"waggletag/internal/label"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

// SnippetSummary is the wire form of one labeled snippet.
type SnippetSummary struct {
	Key       string    `json:"key"`
	Date      string    `json:"date"`
	Camera    int       `json:"camera"`
	Detection int       `json:"detection"`
	TagStatus string    `json:"tag_status"`
	DanceType string    `json:"dance_type"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// SnippetListResponse answers the filtered listing endpoint.
type SnippetListResponse struct {
	Snippets []SnippetSummary `json:"snippets"`
}

// SnippetDetailResponse answers a single-snippet load.
type SnippetDetailResponse struct {
	Snippet  SnippetSummary `json:"snippet"`
	VideoURL string         `json:"video_url"`
}

// LabelUpdateRequest carries a reviewer decision.
type LabelUpdateRequest struct {
	TagStatus string `json:"tag_status"`
	DanceType string `json:"dance_type"`
}

// StatsResponse reports per-bucket snippet counts.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// HealthResponse answers the liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// FromEntry converts a store entry into its wire form.
func FromEntry(e store.Entry) SnippetSummary {
	return FromLabel(e.Identity, e.Label)
}

// FromLabel converts an identity and label into their wire form.
func FromLabel(id snippet.Identity, lbl label.Label) SnippetSummary {
	return SnippetSummary{
		Key:       id.Key(),
		Date:      id.Date,
		Camera:    id.Camera,
		Detection: id.Detection,
		TagStatus: string(lbl.TagStatus),
		DanceType: string(lbl.DanceType),
		Source:    string(lbl.Source),
		CreatedAt: lbl.CreatedAt,
		UpdatedAt: lbl.UpdatedAt,
	}
}
