// Package rewind decides, per file, whether a modification time should be
// rewound to its recorded baseline, and applies those decisions.
package rewind

import (
	"time"

	"github.com/schaermu/mtime-rewind/internal/fingerprint"
	"github.com/schaermu/mtime-rewind/internal/state"
)

// Kind classifies the outcome of reconciling one file.
type Kind int

const (
	// AdoptNew: no previous record; the observation becomes the baseline.
	AdoptNew Kind = iota
	// AdoptChanged: content changed; the observation becomes the baseline.
	AdoptChanged
	// Rewind: content unchanged but mtime moved; restore the previous mtime.
	Rewind
	// Unchanged: content and mtime match the previous record.
	Unchanged
)

// Kinds lists every Kind in report order.
var Kinds = []Kind{AdoptNew, AdoptChanged, Rewind, Unchanged}

func (k Kind) String() string {
	switch k {
	case AdoptNew:
		return "adopt-new"
	case AdoptChanged:
		return "adopt-changed"
	case Rewind:
		return "rewind"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Action is the decision for one file.
type Action struct {
	Kind        Kind
	Path        string
	Fingerprint fingerprint.Fingerprint

	// Mtime is the baseline stored for the next run. For Rewind it is the
	// previous mtime, which is what the file holds once the rewind is applied.
	Mtime time.Time

	// Observed is the mtime seen during this run's scan.
	Observed time.Time
}

// Record returns the state entry this action leaves behind.
func (a Action) Record() state.FileRecord {
	return state.FileRecord{
		Path:        a.Path,
		Fingerprint: a.Fingerprint,
		Mtime:       a.Mtime,
	}
}

// Reconcile compares the current scan with the previous run's snapshot. It
// returns one action per path in cur, ordered by path, and the snapshot to
// persist. Paths only present in prev are dropped.
func Reconcile(prev, cur state.Snapshot) ([]Action, state.Snapshot) {
	actions := make([]Action, 0, len(cur))
	next := make(state.Snapshot, len(cur))

	for _, p := range cur.Paths() {
		observed := cur[p]
		action := Action{
			Kind:        AdoptNew,
			Path:        p,
			Fingerprint: observed.Fingerprint,
			Mtime:       observed.Mtime,
			Observed:    observed.Mtime,
		}

		if recorded, ok := prev[p]; ok {
			switch {
			case recorded.Fingerprint != observed.Fingerprint:
				action.Kind = AdoptChanged
			case recorded.Mtime.Equal(observed.Mtime):
				action.Kind = Unchanged
			default:
				action.Kind = Rewind
				action.Mtime = recorded.Mtime
			}
		}

		actions = append(actions, action)
		next.Put(action.Record())
	}

	return actions, next
}

// Removed lists, in order, the paths recorded in prev that are gone from cur.
func Removed(prev, cur state.Snapshot) []string {
	var removed []string
	for _, p := range prev.Paths() {
		if _, ok := cur[p]; !ok {
			removed = append(removed, p)
		}
	}
	return removed
}
