package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"waggletag/internal/deps"
	"waggletag/internal/store"
)

// CheckFFmpeg verifies the encoder binary resolves and runs.
func CheckFFmpeg(ctx context.Context, binary string) Result {
	status := deps.FFmpegVersion(ctx, binary)
	return Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckLabelStore verifies the label database opens and its schema is usable.
func CheckLabelStore(outputDir string) Result {
	const name = "Label store"

	labels, err := store.Open(outputDir)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer labels.Close()
	return Result{Name: name, Passed: true, Detail: labels.Path()}
}
