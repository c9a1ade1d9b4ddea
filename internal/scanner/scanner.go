package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"waggletag/internal/snippet"
)

// FramesFileName is the animated frame-sequence file the detector writes per
// detection.
const FramesFileName = "frames.apng"

// MetadataFileName is the per-detection metadata document.
const MetadataFileName = "waggle.json"

// Skip records one malformed candidate encountered during a scan. Skips are
// reported, counted, and never fatal.
type Skip struct {
	Path   string
	Reason string
}

// Result holds the outcome of scanning an input tree.
type Result struct {
	Snippets []snippet.Snippet
	Skips    []Skip
}

// Scan walks the raw detection tree under root and discovers snippet
// candidates. The expected shape is <root>/<date>/cam<N>/<detection>/ with a
// frames.apng or a numbered PNG sequence inside, plus an optional
// waggle.json. Candidates with unparseable path segments or an empty or
// unreadable frame source become Skips. Snippets are returned sorted by
// identity so reruns hand off work in the same order.
func Scan(root string) (Result, error) {
	result := Result{}

	info, err := os.Stat(root)
	if err != nil {
		return result, fmt.Errorf("stat input directory: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("input path %s is not a directory", root)
	}

	dateEntries, err := os.ReadDir(root)
	if err != nil {
		return result, fmt.Errorf("read input directory: %w", err)
	}

	for _, dateEntry := range dateEntries {
		datePath := filepath.Join(root, dateEntry.Name())
		if !dateEntry.IsDir() {
			result.Skips = append(result.Skips, Skip{Path: datePath, Reason: "not a directory"})
			continue
		}
		date, err := snippet.NormalizeDate(dateEntry.Name())
		if err != nil {
			result.Skips = append(result.Skips, Skip{Path: datePath, Reason: "unrecognized date directory"})
			continue
		}
		scanDateDir(datePath, date, &result)
	}

	sort.Slice(result.Snippets, func(i, j int) bool {
		return result.Snippets[i].Identity.Less(result.Snippets[j].Identity)
	})
	return result, nil
}

func scanDateDir(datePath, date string, result *Result) {
	cameraEntries, err := os.ReadDir(datePath)
	if err != nil {
		result.Skips = append(result.Skips, Skip{Path: datePath, Reason: "unreadable date directory"})
		return
	}
	for _, cameraEntry := range cameraEntries {
		cameraPath := filepath.Join(datePath, cameraEntry.Name())
		if !cameraEntry.IsDir() {
			result.Skips = append(result.Skips, Skip{Path: cameraPath, Reason: "not a directory"})
			continue
		}
		camera, ok := parseCameraDir(cameraEntry.Name())
		if !ok {
			result.Skips = append(result.Skips, Skip{Path: cameraPath, Reason: "unrecognized camera directory"})
			continue
		}
		scanCameraDir(cameraPath, date, camera, result)
	}
}

func scanCameraDir(cameraPath, date string, camera int, result *Result) {
	detectionEntries, err := os.ReadDir(cameraPath)
	if err != nil {
		result.Skips = append(result.Skips, Skip{Path: cameraPath, Reason: "unreadable camera directory"})
		return
	}
	for _, detectionEntry := range detectionEntries {
		detectionPath := filepath.Join(cameraPath, detectionEntry.Name())
		if !detectionEntry.IsDir() {
			result.Skips = append(result.Skips, Skip{Path: detectionPath, Reason: "not a directory"})
			continue
		}
		detection, err := strconv.Atoi(detectionEntry.Name())
		if err != nil || detection < 0 {
			result.Skips = append(result.Skips, Skip{Path: detectionPath, Reason: "unrecognized detection directory"})
			continue
		}

		id := snippet.Identity{Date: date, Camera: camera, Detection: detection}
		candidate, skip := inspectDetection(detectionPath, id)
		if skip != nil {
			result.Skips = append(result.Skips, *skip)
			continue
		}
		result.Snippets = append(result.Snippets, candidate)
	}
}

// inspectDetection validates one detection directory and builds its snippet
// descriptor.
func inspectDetection(dir string, id snippet.Identity) (snippet.Snippet, *Skip) {
	framesPath := filepath.Join(dir, FramesFileName)
	frameCount := 0

	info, err := os.Stat(framesPath)
	switch {
	case err == nil && info.Size() > 0:
		// Animated sequence file present.
	case err == nil:
		return snippet.Snippet{}, &Skip{Path: framesPath, Reason: "empty frame sequence"}
	default:
		// Fall back to a numbered PNG sequence in the directory itself.
		frames, frameErr := pngFrames(dir)
		if frameErr != nil {
			return snippet.Snippet{}, &Skip{Path: dir, Reason: "unreadable detection directory"}
		}
		if len(frames) == 0 {
			return snippet.Snippet{}, &Skip{Path: dir, Reason: "no frame source"}
		}
		framesPath = dir
		frameCount = len(frames)
	}

	meta, metaErr := readMetadata(filepath.Join(dir, MetadataFileName))
	if metaErr != nil {
		return snippet.Snippet{}, &Skip{Path: filepath.Join(dir, MetadataFileName), Reason: "malformed metadata"}
	}

	return snippet.Snippet{
		Identity:   id,
		FramesPath: framesPath,
		FrameCount: frameCount,
		Metadata:   meta,
	}, nil
}

func pngFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			frames = append(frames, entry.Name())
		}
	}
	sort.Strings(frames)
	return frames, nil
}

// readMetadata decodes waggle.json when present. A missing file is fine; an
// unreadable or undecodable one is not.
func readMetadata(path string) (*snippet.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta snippet.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func parseCameraDir(name string) (int, bool) {
	trimmed := strings.TrimPrefix(strings.ToLower(name), "cam")
	if trimmed == name || trimmed == "" {
		return 0, false
	}
	camera, err := strconv.Atoi(trimmed)
	if err != nil || camera < 0 {
		return 0, false
	}
	return camera, true
}
