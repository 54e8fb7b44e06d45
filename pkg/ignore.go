package filehashcache

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jmgilman/go/fs/core"
)

// defaultIgnorePatterns keep VCS metadata and our own state out of every cache.
var defaultIgnorePatterns = []string{
	`(^|/)\.git(/|$)`,
	`(^|/)\.hg(/|$)`,
	`(^|/)\.svn(/|$)`,
	`(^|/)\.fhcache(/|$)`,
}

// IgnoreManager decides which root-relative paths a cache must not track.
// Patterns are Go regular expressions matched against slash-separated paths.
type IgnoreManager struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
}

// NewIgnoreManager creates an ignore manager holding the default patterns
func NewIgnoreManager() *IgnoreManager {
	im := &IgnoreManager{}
	for _, p := range defaultIgnorePatterns {
		im.patterns = append(im.patterns, regexp.MustCompile(p))
	}
	return im
}

// NewEmptyIgnoreManager creates an ignore manager that ignores nothing.
// Root caches use it: system paths have no VCS layout to hide.
func NewEmptyIgnoreManager() *IgnoreManager {
	return &IgnoreManager{}
}

// LoadIgnoreFile reads patterns from .fhcache/ignore inside fsys.
// A missing file is not an error.
func (im *IgnoreManager) LoadIgnoreFile(fsys core.FS) error {
	ignorePath := path.Join(StateDirName, IgnoreFileName)
	exists, err := fsys.Exists(ignorePath)
	if err != nil {
		return fmt.Errorf("failed to check ignore file: %w", err)
	}
	if !exists {
		return nil
	}

	data, err := fsys.ReadFile(ignorePath)
	if err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	var loaded []*regexp.Regexp
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pattern, err := regexp.Compile(line)
		if err != nil {
			return fmt.Errorf("invalid regex pattern at line %d: %s - %w", lineNum, line, err)
		}
		loaded = append(loaded, pattern)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading ignore file: %w", err)
	}

	im.mu.Lock()
	im.patterns = append(im.patterns, loaded...)
	im.mu.Unlock()
	return nil
}

// AddPattern adds a new ignore pattern
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}

	im.mu.Lock()
	im.patterns = append(im.patterns, pattern)
	im.mu.Unlock()
	return nil
}

// ShouldIgnore checks if a path should be ignored based on patterns
func (im *IgnoreManager) ShouldIgnore(relativePath string) bool {
	normalisedPath := filepath.ToSlash(relativePath)

	im.mu.RLock()
	defer im.mu.RUnlock()
	for _, pattern := range im.patterns {
		if pattern.MatchString(normalisedPath) {
			return true
		}
	}
	return false
}

// Patterns returns the pattern sources in load order
func (im *IgnoreManager) Patterns() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	out := make([]string, len(im.patterns))
	for i, p := range im.patterns {
		out[i] = p.String()
	}
	return out
}
