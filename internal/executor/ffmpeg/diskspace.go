package ffmpeg

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const gib = 1 << 30

// statfsFunc reports total and available bytes for the filesystem at path.
type statfsFunc func(path string) (total, free uint64, err error)

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}

// checkOutputDir verifies the output root exists, is writable, and has at
// least minFree bytes available.
func checkOutputDir(path string, minFree uint64, statfs statfsFunc) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := unix.Access(path, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("output dir %s: insufficient permissions: %w", path, err)
	}
	if minFree == 0 || statfs == nil {
		return nil
	}
	_, free, err := statfs(path)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}
	if free < minFree {
		return fmt.Errorf("output dir %s: %.1f GiB free, need %.1f GiB", path, float64(free)/gib, float64(minFree)/gib)
	}
	return nil
}
