package state

import (
	"sort"
	"time"

	"github.com/schaermu/mtime-rewind/internal/fingerprint"
)

// FileRecord is the observed or recorded state of one file under the root
type FileRecord struct {
	Path        string                  // slash separated, relative to root
	Fingerprint fingerprint.Fingerprint // content hash
	Mtime       time.Time               // modification time, nanosecond precision
}

// Equal reports whether both records describe the same file, content and mtime.
func (r FileRecord) Equal(other FileRecord) bool {
	return r.Path == other.Path &&
		r.Fingerprint == other.Fingerprint &&
		r.Mtime.Equal(other.Mtime)
}

// Snapshot maps relative paths to their records.
type Snapshot map[string]FileRecord

// Put inserts rec keyed by its path.
func (s Snapshot) Put(rec FileRecord) {
	s[rec.Path] = rec
}

// Paths returns all tracked paths in lexical order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a copy that shares no map storage with s.
func (s Snapshot) Clone() Snapshot {
	clone := make(Snapshot, len(s))
	for p, rec := range s {
		clone[p] = rec
	}
	return clone
}

// Equal reports whether both snapshots track the same paths with equal records.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for p, rec := range s {
		o, ok := other[p]
		if !ok || !rec.Equal(o) {
			return false
		}
	}
	return true
}
