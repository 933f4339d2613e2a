package scan

import (
	"errors"
	"fmt"
)

// Operations recorded on FileError.
const (
	OpWalk   = "walk"
	OpHash   = "hash"
	OpRewind = "rewind"
)

var (
	ErrNotDirectory       = errors.New("not a directory")
	ErrModifiedDuringScan = errors.New("file modified while it was hashed")
	ErrNotRegularFile     = errors.New("not a regular file")
)

// FileError is a failure confined to one path. It is reported and the run
// continues with the remaining files.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
