package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func useRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := root
	root = dir
	t.Cleanup(func() { root = prev })
	return dir
}

func TestMake(t *testing.T) {
	parent := useRoot(t)

	dir, cleanup, err := Make("snippet")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(dir) != parent || !strings.HasPrefix(filepath.Base(dir), Prefix+"snippet-") {
		t.Errorf("dir = %q", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir not created: %v", err)
	}

	cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("dir still exists after cleanup: %v", err)
	}
}

func TestCleanupOrphaned(t *testing.T) {
	parent := useRoot(t)

	old := filepath.Join(parent, Prefix+"snippet-old")
	fresh := filepath.Join(parent, Prefix+"chart-fresh")
	foreign := filepath.Join(parent, "other-old")
	for _, d := range []string{old, fresh, foreign} {
		if err := os.Mkdir(d, 0o700); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	for _, d := range []string{old, foreign} {
		if err := os.Chtimes(d, past, past); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanupOrphaned(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("orphaned dir was not removed")
	}
	for _, d := range []string{fresh, foreign} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("%s should survive: %v", d, err)
		}
	}
}
