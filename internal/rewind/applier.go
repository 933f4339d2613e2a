package rewind

import (
	"path/filepath"
)

// Applier carries out the filesystem side of an action.
type Applier interface {
	Apply(root string, a Action) error
}

// FSApplier sets the mtime of rewound files, leaving atime and content alone.
// Other kinds need no I/O.
type FSApplier struct{}

// Apply implements Applier.
func (FSApplier) Apply(root string, a Action) error {
	if a.Kind != Rewind {
		return nil
	}
	return setMtime(filepath.Join(root, filepath.FromSlash(a.Path)), a.Mtime)
}

// NoopApplier touches nothing. It stands in for FSApplier in dry-run mode.
type NoopApplier struct{}

// Apply implements Applier.
func (NoopApplier) Apply(string, Action) error {
	return nil
}
