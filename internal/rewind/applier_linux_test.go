package rewind

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/schaermu/mtime-rewind/internal/testutil"
)

func TestFSApplier_PreservesAtime(t *testing.T) {
	root := t.TempDir()
	path := testutil.WriteFile(t, root, "a.txt", "x")

	atime := time.Unix(1600000000, 42)
	times := []unix.Timespec{unix.NsecToTimespec(atime.UnixNano()), unix.NsecToTimespec(t1.UnixNano())}
	if err := unix.UtimesNano(path, times); err != nil {
		t.Fatal(err)
	}

	if err := (FSApplier{}).Apply(root, Action{Kind: Rewind, Path: "a.txt", Mtime: t0}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		t.Fatal(err)
	}
	if got := time.Unix(st.Atim.Unix()); !got.Equal(atime) {
		t.Errorf("atime = %v, want %v", got, atime)
	}
	if got := time.Unix(st.Mtim.Unix()); !got.Equal(t0) {
		t.Errorf("mtime = %v, want %v", got, t0)
	}
}
