//go:build linux || darwin || freebsd

package rewind

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// setMtime updates only the modification time. A symlink swapped in since the
// scan is changed itself rather than followed.
func setMtime(path string, mtime time.Time) error {
	ts, err := unix.TimeToTimespec(mtime)
	if err != nil {
		return &os.PathError{Op: "utimensat", Path: path, Err: err}
	}

	times := []unix.Timespec{
		{Nsec: unix.UTIME_OMIT},
		ts,
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return &os.PathError{Op: "utimensat", Path: path, Err: err}
	}
	return nil
}
