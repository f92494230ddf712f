package backingstore

import (
	"fmt"
	"os"

	"github.com/piscisaureus/istgt/internal/istgterr"
)

// IsBlockDevice reports whether path names a block device node, so config
// loading can dispatch to BlockDevice instead of RawFile (§4.8). A path that
// doesn't exist yet (a raw file to be created on first open) is treated as
// not-a-block-device rather than an error.
func IsBlockDevice(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w: %w", path, err, istgterr.ErrBackingStore)
	}
	return fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice == 0, nil
}
