package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ormasoftchile/tessera/pkg/report"
)

// makeRunDir creates the run artifacts directory and its subdirectories.
func makeRunDir(root, runID string) (string, error) {
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(dir, report.ScreenshotDir), 0755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

// screenshotSink stores failure screenshots under the run directory.
// Names carry a shared counter so the same step ID across data rows or
// parallel cases never collides.
type screenshotSink struct {
	dir string

	mu sync.Mutex
	n  int
}

// SaveScreenshot writes a PNG and returns its path relative to the run
// directory.
func (s *screenshotSink) SaveScreenshot(stepID string, png []byte) (string, error) {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()

	name := fmt.Sprintf("%03d-%s.png", n, sanitizeName(stepID))
	rel := filepath.Join(report.ScreenshotDir, name)
	if err := os.WriteFile(filepath.Join(s.dir, rel), png, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return rel, nil
}

// sanitizeName keeps step IDs filesystem-safe.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
