// Package testutil builds file trees with controlled mtimes for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile creates root/rel (slash separated) with content, creating parent
// directories, and returns the absolute path.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// WriteFileAt is WriteFile followed by SetMtime.
func WriteFileAt(t testing.TB, root, rel, content string, mtime time.Time) string {
	t.Helper()

	path := WriteFile(t, root, rel, content)
	SetMtime(t, path, mtime)
	return path
}

// SetMtime sets both atime and mtime of path.
func SetMtime(t testing.TB, path string, mtime time.Time) {
	t.Helper()

	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("set mtime of %s: %v", path, err)
	}
}

// Mtime returns the modification time of path.
func Mtime(t testing.TB, path string) time.Time {
	t.Helper()

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.ModTime()
}

// Touch moves the mtime of path forward by d without changing its content.
func Touch(t testing.TB, path string, d time.Duration) time.Time {
	t.Helper()

	next := Mtime(t, path).Add(d)
	SetMtime(t, path, next)
	return next
}

// Base returns a fixed, nanosecond precise mtime that tests offset from.
func Base() time.Time {
	return time.Unix(1700000000, 123456789)
}
