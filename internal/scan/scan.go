// Package scan enumerates the files under a root and fingerprints them into
// the snapshot of the current run.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/mtime-rewind/internal/fingerprint"
	"github.com/schaermu/mtime-rewind/internal/state"
)

// Walk lists the regular files under root that exclude does not reject.
// Paths are slash separated, relative to root and sorted. Unreadable
// directories are reported as FileErrors and skipped.
func Walk(root string, exclude ExcludeFunc) ([]string, []*FileError, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	var (
		files []string
		errs  []*FileError
	)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			errs = append(errs, &FileError{Path: rel, Op: OpWalk, Err: err})
			return nil
		}

		if exclude != nil && exclude(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets and devices are not tracked.
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, errs, nil
}

// Collect fingerprints paths using up to workers goroutines (NumCPU when
// workers <= 0). Files that cannot be read are left out of the snapshot and
// returned as FileErrors. The returned error is only set on cancellation.
func Collect(ctx context.Context, root string, paths []string, workers int) (state.Snapshot, []*FileError, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	records := make([]state.FileRecord, len(paths))
	failures := make([]*FileError, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rel := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := record(root, rel)
			if err != nil {
				failures[i] = &FileError{Path: rel, Op: OpHash, Err: err}
				return nil
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	snap := make(state.Snapshot, len(paths))
	var errs []*FileError
	for i := range paths {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		snap.Put(records[i])
	}
	return snap, errs, nil
}

// record hashes one file and captures its mtime. A file whose size or mtime
// moves while it is read is rejected so the fingerprint always matches the
// recorded mtime.
func record(root, rel string) (state.FileRecord, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))

	before, err := os.Lstat(abs)
	if err != nil {
		return state.FileRecord{}, err
	}
	if !before.Mode().IsRegular() {
		return state.FileRecord{}, ErrNotRegularFile
	}

	fp, err := fingerprint.File(abs)
	if err != nil {
		return state.FileRecord{}, err
	}

	after, err := os.Lstat(abs)
	if err != nil {
		return state.FileRecord{}, err
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		return state.FileRecord{}, ErrModifiedDuringScan
	}

	return state.FileRecord{
		Path:        rel,
		Fingerprint: fp,
		Mtime:       after.ModTime(),
	}, nil
}
