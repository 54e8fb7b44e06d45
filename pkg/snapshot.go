package filehashcache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/vectorio"
	"github.com/jmgilman/go/errors"
	"github.com/natefinch/atomic"
)

// iovMax is the Linux UIO_MAXIOV limit on iovecs per writev call.
const iovMax = 1024

// SnapshotEntry is one line of a snapshot dump.
type SnapshotEntry struct {
	Path   string
	Kind   string
	Digest HashCode
}

// WriteSnapshot dumps the cached records to outputPath, one
// "path<TAB>kind<TAB>digest" line per entry in path order. A path holding a
// tab, line break or leading quote is written Go-quoted. The file is
// written beside the target and renamed into place, so readers never see
// a partial dump. Returns the number of entries written.
func (c *FileHashCache) WriteSnapshot(outputPath string) (int, error) {
	snapshot := c.engine.AsMap()
	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	lines := make([][]byte, len(paths))
	expected := 0
	for i, p := range paths {
		record := snapshot[p]
		lines[i] = []byte(fmt.Sprintf("%s\t%s\t%s\n", encodeSnapshotPath(p), record.Kind, record.Digest))
		expected += len(lines[i])
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".fhcache-snapshot-*")
	if err != nil {
		return 0, errors.Wrap(err, CodeIO, "failed to create snapshot temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	defer tmp.Close()

	written, err := writeLines(tmp, lines)
	if err != nil {
		return 0, errors.Wrapf(err, CodeIO, "failed to write snapshot %s", tmpName)
	}
	if written != expected {
		return 0, errors.Newf(CodeIO, "snapshot write incomplete: wrote %d bytes, expected %d", written, expected)
	}
	if err := tmp.Sync(); err != nil {
		return 0, errors.Wrap(err, CodeIO, "failed to sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, CodeIO, "failed to close snapshot")
	}
	if err := atomic.ReplaceFile(tmpName, outputPath); err != nil {
		return 0, errors.Wrapf(err, CodeIO, "failed to move snapshot into place at %s", outputPath)
	}

	c.logger.VerboseLog(1, "wrote %d snapshot entries to %s", len(lines), outputPath)
	return len(lines), nil
}

func encodeSnapshotPath(p string) string {
	if strings.ContainsAny(p, "\t\n\r") || strings.HasPrefix(p, `"`) {
		return strconv.Quote(p)
	}
	return p
}

func decodeSnapshotPath(field string) (string, error) {
	if strings.HasPrefix(field, `"`) {
		return strconv.Unquote(field)
	}
	return field, nil
}

// writeLines writes every line with vectored writes, chunked to iovMax.
func writeLines(f *os.File, lines [][]byte) (int, error) {
	iovecs := make([]syscall.Iovec, 0, len(lines))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		iovecs = append(iovecs, syscall.Iovec{
			Base: &line[0],
			Len:  uint64(len(line)),
		})
	}

	totalWritten := 0
	for offset := 0; offset < len(iovecs); offset += iovMax {
		end := min(offset+iovMax, len(iovecs))
		nw, err := vectorio.WritevRaw(f.Fd(), iovecs[offset:end])
		if err != nil {
			return totalWritten, err
		}
		totalWritten += nw
	}
	return totalWritten, nil
}

// ReadSnapshot parses a dump written by WriteSnapshot.
func ReadSnapshot(path string) ([]SnapshotEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot open snapshot %s", path)
	}
	defer f.Close()

	var entries []SnapshotEntry
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 3 {
			return nil, errors.Newf(errors.CodeInvalidInput, "malformed snapshot line %d in %s", lineNum, path)
		}
		p, err := decodeSnapshotPath(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidInput, "bad path on snapshot line %d in %s", lineNum, path)
		}
		digest, err := ParseHashCode(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidInput, "bad digest on snapshot line %d in %s", lineNum, path)
		}
		entries = append(entries, SnapshotEntry{Path: p, Kind: fields[1], Digest: digest})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot read snapshot %s", path)
	}
	return entries, nil
}
