package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAt(t *testing.T) {
	root := t.TempDir()

	path := WriteFileAt(t, root, "nested/dir/a.txt", "a", Base())
	if path != filepath.Join(root, "nested", "dir", "a.txt") {
		t.Fatalf("unexpected path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a" {
		t.Errorf("content = %q, want %q", data, "a")
	}

	if got := Mtime(t, path); !got.Equal(Base()) {
		t.Errorf("mtime = %v, want %v", got, Base())
	}
}

func TestTouch(t *testing.T) {
	path := WriteFileAt(t, t.TempDir(), "a.txt", "a", Base())

	next := Touch(t, path, time.Hour)
	if !next.Equal(Base().Add(time.Hour)) {
		t.Errorf("Touch returned %v", next)
	}
	if got := Mtime(t, path); !got.Equal(next) {
		t.Errorf("mtime = %v, want %v", got, next)
	}
}
