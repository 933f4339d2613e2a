package scan

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/schaermu/mtime-rewind/internal/state"
)

// CacheDirTagName is the marker file that flags a directory as a cache
// (https://bford.info/cachedir/).
const CacheDirTagName = "CACHEDIR.TAG"

// CacheDirTagSignature is the header a valid marker file starts with.
const CacheDirTagSignature = "Signature: 8a477f597d28d172789f06886806bc55"

// ExcludeFunc reports whether the entry at rel (slash separated, relative to
// the root) is skipped. Returning true for a directory prunes its subtree.
type ExcludeFunc func(rel string, d fs.DirEntry) bool

// Options configures which entries are enumerated.
type Options struct {
	// StateFile is the state file name under the root. It and its
	// temporary siblings are always excluded.
	StateFile string

	// IncludeHidden scans entries whose name starts with ".".
	IncludeHidden bool

	// CacheDirTag prunes directories holding a valid CACHEDIR.TAG.
	CacheDirTag bool

	// Exclude holds doublestar patterns matched against relative paths.
	Exclude []string
}

// NewExcluder builds the exclusion predicate for a walk of root.
func NewExcluder(root string, opts Options) ExcludeFunc {
	return func(rel string, d fs.DirEntry) bool {
		name := d.Name()

		if opts.StateFile != "" && !strings.Contains(rel, "/") && state.IsArtifact(name, opts.StateFile) {
			return true
		}

		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			return true
		}

		if MatchesAny(opts.Exclude, rel) {
			return true
		}

		if opts.CacheDirTag && d.IsDir() && IsCacheDir(filepath.Join(root, filepath.FromSlash(rel))) {
			return true
		}

		return false
	}
}

// MatchesAny returns true if rel matches any of the patterns.
func MatchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		ok, err := doublestar.Match(p, rel)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// IsCacheDir reports whether dir contains a CACHEDIR.TAG with the standard
// signature.
func IsCacheDir(dir string) bool {
	f, err := os.Open(filepath.Join(dir, CacheDirTagName))
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()

	header := make([]byte, len(CacheDirTagSignature))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header, []byte(CacheDirTagSignature))
}
