package main

import (
	"strings"
	"testing"

	"waggletag/internal/ingest"
	"waggletag/internal/snippet"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"tag-not-visible": "Tag Not Visible",
		"untagged":        "Untagged",
		"waggle":          "Waggle",
		"model-predicted": "Model Predicted",
	}
	for input, want := range cases {
		if got := displayName(input); got != want {
			t.Errorf("displayName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildFilterRejectsUnknownValues(t *testing.T) {
	if _, err := buildFilter([]string{"bogus"}, nil, nil, "", 0, false); err == nil {
		t.Fatal("expected error for unknown tag status")
	}
	if _, err := buildFilter(nil, []string{"shimmy"}, nil, "", 0, false); err == nil {
		t.Fatal("expected error for unknown dance type")
	}
	filter, err := buildFilter([]string{"tag-visible"}, []string{"waggle"}, nil, "20210601", 2, true)
	if err != nil {
		t.Fatalf("valid filter rejected: %v", err)
	}
	if filter.Date != "2021-06-01" {
		t.Fatalf("date not normalized: %q", filter.Date)
	}
	if filter.Camera == nil || *filter.Camera != 2 {
		t.Fatalf("camera filter not set: %+v", filter.Camera)
	}
}

func TestRenderIngestReport(t *testing.T) {
	report := ingest.Report{Ingested: 8, SkippedExisting: 3, Failed: 2}
	rendered := renderIngestReport(report)
	for _, want := range []string{"Ingested", "8", "Skipped", "3", "Failed", "2"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("report table missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderFailuresSorted(t *testing.T) {
	failures := []ingest.Failure{
		{Identity: snippet.Identity{Date: "2021-06-02", Camera: 1, Detection: 1}, Err: errFake("late"), Recoverable: true},
		{Identity: snippet.Identity{Date: "2021-06-01", Camera: 1, Detection: 5}, Err: errFake("early")},
	}
	rendered := renderFailures(failures)
	first := strings.Index(rendered, "2021-06-01_cam1_5")
	second := strings.Index(rendered, "2021-06-02_cam1_1")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("failures not sorted by identity:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Retryable") || !strings.Contains(rendered, "yes") || !strings.Contains(rendered, "no") {
		t.Fatalf("failure table missing retryable column:\n%s", rendered)
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
