// Package transcode converts raw detection frame captures into MP4
// snippets via the ffmpeg command line. Encodes land on a temp path
// and are renamed into place only after validation, so consumers never
// observe partial output.
package transcode
