//go:build !(linux || darwin || freebsd)

package rewind

import (
	"os"
	"time"
)

// setMtime updates only the modification time; a zero atime is left as is.
func setMtime(path string, mtime time.Time) error {
	return os.Chtimes(path, time.Time{}, mtime)
}
