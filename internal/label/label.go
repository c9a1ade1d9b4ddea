package label

import (
	"strings"
	"time"
)

// TagStatus records whether a visible marker tag is detectable in a snippet.
type TagStatus string

const (
	TagUntagged   TagStatus = "untagged"
	TagVisible    TagStatus = "tag-visible"
	TagNotVisible TagStatus = "tag-not-visible"
	TagUnclear    TagStatus = "unclear"
)

var allTagStatuses = []TagStatus{
	TagUntagged,
	TagVisible,
	TagNotVisible,
	TagUnclear,
}

var tagStatusSet = func() map[TagStatus]struct{} {
	set := make(map[TagStatus]struct{}, len(allTagStatuses))
	for _, status := range allTagStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllTagStatuses returns the ordered list of known tag statuses.
func AllTagStatuses() []TagStatus {
	cp := make([]TagStatus, len(allTagStatuses))
	copy(cp, allTagStatuses)
	return cp
}

// ParseTagStatus converts a string into a known TagStatus.
func ParseTagStatus(value string) (TagStatus, bool) {
	normalized := TagStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "tagged", "tag_visible":
		normalized = TagVisible
	case "tag_not_visible":
		normalized = TagNotVisible
	}
	if _, ok := tagStatusSet[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// AbsorbTagStatus normalizes free-form external input into the closed tag
// status set. Unrecognized values map to TagUnclear rather than flowing
// through the core as arbitrary strings.
func AbsorbTagStatus(value string) TagStatus {
	if status, ok := ParseTagStatus(value); ok {
		return status
	}
	return TagUnclear
}

// DanceType is the behavioral classification of the depicted event.
type DanceType string

const (
	DanceWaggle  DanceType = "waggle"
	DanceRound   DanceType = "round"
	DanceTremble DanceType = "tremble"
	DanceOther   DanceType = "other"
	DanceUnknown DanceType = "unknown"
)

var allDanceTypes = []DanceType{
	DanceWaggle,
	DanceRound,
	DanceTremble,
	DanceOther,
	DanceUnknown,
}

var danceTypeSet = func() map[DanceType]struct{} {
	set := make(map[DanceType]struct{}, len(allDanceTypes))
	for _, dance := range allDanceTypes {
		set[dance] = struct{}{}
	}
	return set
}()

// AllDanceTypes returns the ordered list of known dance types.
func AllDanceTypes() []DanceType {
	cp := make([]DanceType, len(allDanceTypes))
	copy(cp, allDanceTypes)
	return cp
}

// ParseDanceType converts a string into a known DanceType.
func ParseDanceType(value string) (DanceType, bool) {
	normalized := DanceType(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := danceTypeSet[normalized]; !ok {
		return "", false
	}
	return normalized, true
}

// AbsorbDanceType normalizes free-form classifier output into the closed
// dance type set. Unrecognized values map to DanceUnknown.
func AbsorbDanceType(value string) DanceType {
	if dance, ok := ParseDanceType(value); ok {
		return dance
	}
	return DanceUnknown
}

// Source records the provenance of a label.
type Source string

const (
	SourceUnset          Source = "unset"
	SourceModelPredicted Source = "model-predicted"
	SourceHumanCorrected Source = "human-corrected"
)

// ParseSource converts a string into a known Source.
func ParseSource(value string) (Source, bool) {
	normalized := Source(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "", SourceUnset:
		return SourceUnset, normalized != ""
	case SourceModelPredicted, SourceHumanCorrected:
		return normalized, true
	case "model_predicted":
		return SourceModelPredicted, true
	case "human_corrected":
		return SourceHumanCorrected, true
	default:
		return "", false
	}
}

// Label is the mutable annotation state of a snippet.
type Label struct {
	TagStatus TagStatus
	DanceType DanceType
	Source    Source
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Default returns the label every snippet carries until something asserts
// otherwise.
func Default() Label {
	return Label{
		TagStatus: TagUntagged,
		DanceType: DanceUnknown,
		Source:    SourceUnset,
	}
}

// IsDefault reports whether the label still carries the first-ingestion
// defaults (ignoring timestamps).
func (l Label) IsDefault() bool {
	d := Default()
	return l.TagStatus == d.TagStatus && l.DanceType == d.DanceType && l.Source == d.Source
}

// Bucket returns the output subdirectory name for the label's tag status.
func (l Label) Bucket() string {
	return Bucket(l.TagStatus)
}

// Bucket returns the directory name corresponding to a tag status. Bucket
// names equal the status strings so paths stay re-derivable from labels.
func Bucket(status TagStatus) string {
	if _, ok := tagStatusSet[status]; !ok {
		return string(TagUnclear)
	}
	return string(status)
}

// FromBucket maps an output subdirectory name back onto a tag status.
func FromBucket(name string) (TagStatus, bool) {
	return ParseTagStatus(name)
}
