package transcode

import (
	"fmt"
	"os"

	"waggletag/internal/services"
)

// Validate checks that path holds a plausible MP4: present, at least
// minBytes long, and carrying an ftyp box where the container format
// puts it. Catches truncated or garbage encoder output before it is
// renamed into the library.
func Validate(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcode", "validate", "output missing", err)
	}
	if info.Size() < minBytes {
		return services.Wrap(services.ErrValidation, "transcode", "validate",
			fmt.Sprintf("output is %d bytes, expected at least %d", info.Size(), minBytes), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcode", "validate", "open output", err)
	}
	defer file.Close()

	header := make([]byte, 12)
	if _, err := file.ReadAt(header, 0); err != nil {
		return services.Wrap(services.ErrValidation, "transcode", "validate", "read container header", err)
	}
	if string(header[4:8]) != "ftyp" {
		return services.Wrap(services.ErrValidation, "transcode", "validate",
			"output does not start with an MP4 ftyp box", nil)
	}
	return nil
}
