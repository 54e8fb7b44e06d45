package filehashcache

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"path"
	"sync/atomic"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
)

// newMemoryProject builds an in-memory project tree from relative path to
// content, with the default ignore patterns.
func newMemoryProject(t *testing.T, files map[string]string) (*ProjectFilesystem, core.FS) {
	t.Helper()
	mem := billy.NewMemory()
	for name, content := range files {
		writeMemoryFile(t, mem, name, []byte(content))
	}
	return NewProjectFilesystem("/project", mem, NewIgnoreManager()), mem
}

func writeMemoryFile(t *testing.T, fsys core.FS, name string, data []byte) {
	t.Helper()
	if dir := path.Dir(name); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	if err := fsys.WriteFile(name, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

// zipBytes builds a zip archive holding the given entries.
func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to add %s to archive: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s to archive: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func sha1Of(data string) HashCode {
	sum := sha1.Sum([]byte(data))
	return HashCode(sum[:])
}

func mustAlgorithm(t *testing.T, name string) *HashAlgorithm {
	t.Helper()
	algorithm, err := GetHashAlgorithm(name)
	if err != nil {
		t.Fatalf("GetHashAlgorithm(%s): %v", name, err)
	}
	return algorithm
}

// countingLoaders returns loaders that derive a file record from the path
// and count their invocations.
type countingLoaders struct {
	hashCalls atomic.Int64
	sizeCalls atomic.Int64
}

func (c *countingLoaders) hash(p string) (HashRecord, error) {
	c.hashCalls.Add(1)
	return newFileRecord(sha1Of(p)), nil
}

func (c *countingLoaders) size(p string) (int64, error) {
	c.sizeCalls.Add(1)
	return int64(len(p)), nil
}

var allEngineKinds = []EngineKind{EngineLoading, EngineSkiplist, EngineCombo}

// loadsPerMiss is how many times the loader runs for one miss: the combo
// engine asks both of its engines.
func loadsPerMiss(kind EngineKind) int64 {
	if kind == EngineCombo {
		return 2
	}
	return 1
}
