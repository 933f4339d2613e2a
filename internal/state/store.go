// Package state holds the per-file snapshot model and persists it to a single
// file directly under the scanned root.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFileName is the state file created under the root when none is configured.
const DefaultFileName = ".hashprint"

// CurrentSchemaVersion is written into every saved state.
const CurrentSchemaVersion = 1

// Format selects the on-disk encoding of the state file.
type Format string

const (
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// Errors
var (
	ErrStateNotFound      = errors.New("state not found")
	ErrStateCorrupt       = errors.New("state file is corrupt")
	ErrUnsupportedVersion = errors.New("state file version is not supported")
)

// Store loads and saves the snapshot recorded at the end of the previous run.
type Store interface {
	// Load returns the persisted snapshot, or ErrStateNotFound on first run.
	Load(ctx context.Context) (Snapshot, error)

	// Save atomically replaces the persisted snapshot.
	Save(ctx context.Context, snap Snapshot) error

	// Path returns the absolute path of the state file.
	Path() string
}

// Open returns the store for the state file name under root.
func Open(root, name string, format Format, logger *slog.Logger) (Store, error) {
	if err := ValidateFileName(name); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	switch format {
	case FormatJSON, "":
		return NewJSONStore(absRoot, name, logger), nil
	case FormatSQLite:
		return NewSQLiteStore(absRoot, name, logger), nil
	default:
		return nil, fmt.Errorf("unknown state format: %s", format)
	}
}

// ValidateFileName rejects names that would not land directly under the root.
func ValidateFileName(name string) error {
	if name == "" {
		return errors.New("state file name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("state file name must be a bare file name: %q", name)
	}
	return nil
}

// IsArtifact reports whether base is the state file itself or one of the
// temporary and journal files written next to it.
func IsArtifact(base, name string) bool {
	return base == name ||
		strings.HasPrefix(base, name+".tmp") ||
		strings.HasPrefix(base, name+"-")
}

// encodeMtime splits t into whole seconds and the sub-second nanoseconds.
func encodeMtime(t time.Time) (sec int64, nsec int64) {
	return t.Unix(), int64(t.Nanosecond())
}

func decodeMtime(sec, nsec int64) (time.Time, error) {
	if nsec < 0 || nsec >= int64(time.Second) {
		return time.Time{}, fmt.Errorf("mtime nanoseconds out of range: %d", nsec)
	}
	return time.Unix(sec, nsec), nil
}

// validateRelPath guards the applier from entries that escape the root.
func validateRelPath(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	if path.IsAbs(p) {
		return fmt.Errorf("path is not relative: %q", p)
	}
	// A backslash is an ordinary name byte unless it separates paths.
	if filepath.Separator == '\\' && (strings.Contains(p, `\`) || filepath.VolumeName(filepath.FromSlash(p)) != "") {
		return fmt.Errorf("path is not relative: %q", p)
	}
	if clean := path.Clean(p); clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path is not clean: %q", p)
	}
	return nil
}

func corrupt(statePath string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStateCorrupt, statePath, err)
}

// warnOnRootMismatch reports state recorded under a different absolute root.
// Keys are relative, so the state stays usable after the tree moves.
func warnOnRootMismatch(logger *slog.Logger, recorded, current string) {
	if recorded != "" && recorded != current {
		logger.Warn("state was recorded for a different root",
			"recorded_root", recorded,
			"root", current)
	}
}

// writeFileAtomic replaces path with data so that readers only ever observe
// the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true

	// Not every platform can fsync a directory; the rename already happened.
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return f.Sync()
}
