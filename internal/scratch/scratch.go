// Package scratch manages the per-run directories that hold a snippet, its
// failure report and any chart it renders.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Prefix marks every directory this service creates under the temp root.
const Prefix = "code-interpreter-"

// Make creates a fresh directory for one run. The caller removes it with
// the returned cleanup function.
func Make(kind string) (string, func(), error) {
	dir, err := os.MkdirTemp(root, Prefix+kind+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove scratch dir")
		}
	}, nil
}

// root is the parent of all scratch directories; empty means os.TempDir().
var root string

// CleanupOrphaned removes scratch directories last modified before cutoff,
// left behind by a previous process that was killed mid-run.
func CleanupOrphaned(cutoff time.Time) (int, error) {
	parent := root
	if parent == "" {
		parent = os.TempDir()
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", parent, err)
	}

	var cleaned int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(parent, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Error().Err(err).Str("dir", path).Msg("failed to clean orphaned scratch dir")
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned up orphaned scratch dirs")
	}
	return cleaned, nil
}
