package snippet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the canonical recording date format used in identity keys and
// directory names.
const dateLayout = "2006-01-02"

// Identity is the composite key of one detection event. It is stable across
// reruns: the same input tree always yields the same identity.
type Identity struct {
	Date      string
	Camera    int
	Detection int
}

var keyPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_cam(\d+)_(\d+)$`)

// Key returns the canonical string form, e.g. "2021-06-01_cam1_42".
func (id Identity) Key() string {
	return fmt.Sprintf("%s_cam%d_%d", id.Date, id.Camera, id.Detection)
}

// Less orders identities by date, then camera, then detection id. Used to make
// scan handoff order deterministic.
func (id Identity) Less(other Identity) bool {
	if id.Date != other.Date {
		return id.Date < other.Date
	}
	if id.Camera != other.Camera {
		return id.Camera < other.Camera
	}
	return id.Detection < other.Detection
}

// Valid reports whether the identity has a parseable date and non-negative
// camera and detection components.
func (id Identity) Valid() bool {
	if id.Camera < 0 || id.Detection < 0 {
		return false
	}
	_, err := time.Parse(dateLayout, id.Date)
	return err == nil
}

// ParseKey parses the canonical key form back into an Identity.
func ParseKey(key string) (Identity, error) {
	matches := keyPattern.FindStringSubmatch(strings.TrimSpace(key))
	if matches == nil {
		return Identity{}, fmt.Errorf("malformed snippet key %q", key)
	}
	camera, err := strconv.Atoi(matches[2])
	if err != nil {
		return Identity{}, fmt.Errorf("malformed camera in key %q: %w", key, err)
	}
	detection, err := strconv.Atoi(matches[3])
	if err != nil {
		return Identity{}, fmt.Errorf("malformed detection in key %q: %w", key, err)
	}
	id := Identity{Date: matches[1], Camera: camera, Detection: detection}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("invalid date in key %q", key)
	}
	return id, nil
}

// NormalizeDate accepts a few date spellings seen in detector output
// directories (2021-06-01, 20210601) and returns the canonical layout.
func NormalizeDate(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range []string{dateLayout, "20060102"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", value)
}

// Snippet describes one discovered detection event before encoding.
type Snippet struct {
	Identity   Identity
	FramesPath string
	FrameCount int
	Metadata   *Metadata
}

// Metadata mirrors the per-detection waggle.json the detector writes next to
// the frame sequence. Only fields the pipeline consumes are decoded; the rest
// of the document is ignored so detector schema growth stays non-breaking.
type Metadata struct {
	WaggleID            string  `json:"waggle_id"`
	PredictedClassLabel string  `json:"predicted_class_label"`
	Timestamp           string  `json:"timestamp"`
	CameraID            int     `json:"camera_id"`
	Confidence          float64 `json:"confidence"`
}

// CaptureTime parses the metadata timestamp when present.
func (m *Metadata) CaptureTime() (time.Time, bool) {
	if m == nil || strings.TrimSpace(m.Timestamp) == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(m.Timestamp)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
