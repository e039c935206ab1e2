package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirCleanerSweep(t *testing.T) {
	t.Parallel()

	type file struct {
		name  string
		size  int
		age   int64
		gone  bool
		other bool
	}
	tests := []struct {
		name     string
		maxBytes int64
		files    []file
		removed  int
	}{
		{
			name:     "oldest backup goes first",
			maxBytes: 120,
			files: []file{
				{name: "main-2026-01-01T00-00-00.000.log", size: 60, age: 1, gone: true},
				{name: "main-2026-01-02T00-00-00.000.log.gz", size: 60, age: 2},
				{name: "main.log", size: 60, age: 3},
			},
			removed: 1,
		},
		{
			name:     "active file is kept even when oldest",
			maxBytes: 100,
			files: []file{
				{name: "main.log", size: 200, age: 1},
				{name: "main-2026-01-02T00-00-00.000.log", size: 50, age: 2, gone: true},
			},
			removed: 1,
		},
		{
			name:     "under the limit",
			maxBytes: 1000,
			files: []file{
				{name: "main.log", size: 200, age: 1},
				{name: "main-2026-01-02T00-00-00.000.log", size: 50, age: 2},
			},
		},
		{
			name:     "unrelated files are ignored",
			maxBytes: 10,
			files: []file{
				{name: "credentials.json", size: 500, age: 1, other: true},
				{name: "main.log", size: 5, age: 2},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			for _, f := range tc.files {
				writeLogFile(t, filepath.Join(dir, f.name), f.size, time.Unix(f.age, 0))
			}
			cleaner := &dirCleaner{dir: dir, maxBytes: tc.maxBytes, active: filepath.Join(dir, "main.log")}

			removed, err := cleaner.sweep()
			if err != nil {
				t.Fatalf("sweep: %v", err)
			}
			if removed != tc.removed {
				t.Fatalf("removed %d files, want %d", removed, tc.removed)
			}
			for _, f := range tc.files {
				_, errStat := os.Stat(filepath.Join(dir, f.name))
				if f.gone != os.IsNotExist(errStat) {
					t.Fatalf("%s: gone=%v, stat error %v", f.name, f.gone, errStat)
				}
			}
		})
	}
}

func TestDirCleanerMissingDirectory(t *testing.T) {
	t.Parallel()

	cleaner := &dirCleaner{dir: filepath.Join(t.TempDir(), "missing"), maxBytes: 1}
	if removed, err := cleaner.sweep(); err != nil || removed != 0 {
		t.Fatalf("sweep = (%d, %v), want (0, nil)", removed, err)
	}
}

func writeLogFile(t *testing.T, path string, size int, modTime time.Time) {
	t.Helper()

	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("set times: %v", err)
	}
}
