package rewind

import (
	"github.com/schaermu/mtime-rewind/internal/scan"
)

// FileError is a per-file failure; see scan.FileError.
type FileError = scan.FileError

// Report summarises one run.
type Report struct {
	Root      string
	StatePath string
	DryRun    bool
	FirstRun  bool

	// Actions holds one decision per hashed file, ordered by path.
	Actions []Action

	// Removed lists previously tracked paths that no longer exist.
	Removed []string

	// ReadErrors are files that could not be enumerated or hashed. They are
	// absent from the saved state.
	ReadErrors []*FileError

	// ApplyErrors are rewinds that failed. Their intended baseline was still
	// saved so the next run retries them.
	ApplyErrors []*FileError
}

// Count returns the number of actions of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, a := range r.Actions {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// Hashed returns the number of files fingerprinted successfully.
func (r *Report) Hashed() int {
	return len(r.Actions)
}

// Rewound returns the rewinds that took effect, or in dry-run mode the ones
// that would have.
func (r *Report) Rewound() int {
	return r.Count(Rewind) - len(r.ApplyErrors)
}

// Failed returns the number of per-file errors of either kind.
func (r *Report) Failed() int {
	return len(r.ReadErrors) + len(r.ApplyErrors)
}
