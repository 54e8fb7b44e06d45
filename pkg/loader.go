package filehashcache

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// childDigest is one (name, digest) pair feeding a directory digest.
type childDigest struct {
	name   string
	digest HashCode
}

// combineChildDigests folds the pairs, sorted by name, into one digest.
// The input order does not matter.
func combineChildDigests(algorithm *HashAlgorithm, pairs []childDigest) HashCode {
	sorted := slices.Clone(pairs)
	slices.SortFunc(sorted, func(a, b childDigest) int {
		return strings.Compare(a.name, b.name)
	})

	hasher := algorithm.NewFunc()
	for _, pair := range sorted {
		putStringAndLength(hasher, pair.name)
		hasher.Write(pair.digest)
	}
	return HashCode(hasher.Sum(nil))
}

// recordLoader computes records from the filesystem. Directory children are
// resolved through engine so sub-results are shared and single-flighted
// like any other lookup.
//
// hashWorkers bounds two things: the children of one directory resolved at
// once, and, through reads, the file contents read at once across the whole
// cache. Directory fan-out cannot share a cache-wide limit because a parent
// holds its slot while waiting on its children.
type recordLoader struct {
	fs                *ProjectFilesystem
	algorithm         *HashAlgorithm
	archiveExtensions []string
	hashWorkers       int
	reads             *semaphore.Weighted
	engine            Engine
	logger            *Logger
}

func (l *recordLoader) isArchive(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range l.archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// loadRecord is the engine's HashLoader.
func (l *recordLoader) loadRecord(p string) (HashRecord, error) {
	if l.fs.IsDirectory(p) {
		return l.loadDirectory(p)
	}

	if err := l.reads.Acquire(context.Background(), 1); err != nil {
		return HashRecord{}, err
	}
	defer l.reads.Release(1)

	l.logger.DebugLog("hash", "hashing file %s", p)
	digest, err := l.fs.Digest(p, l.algorithm)
	if err != nil {
		return HashRecord{}, err
	}
	if l.isArchive(p) {
		members, err := l.fs.ReadArchiveMembers(p)
		if err != nil {
			return HashRecord{}, err
		}
		return newArchiveRecord(digest, members, l.algorithm), nil
	}
	return newFileRecord(digest), nil
}

func (l *recordLoader) loadDirectory(p string) (HashRecord, error) {
	names, err := l.fs.ListChildren(p)
	if err != nil {
		return HashRecord{}, err
	}
	l.logger.DebugLog("hash", "hashing directory %s (%d children)", p, len(names))

	records := make([]HashRecord, len(names))
	var g errgroup.Group
	g.SetLimit(l.hashWorkers)
	for i, name := range names {
		g.Go(func() error {
			record, err := l.engine.GetRecord(joinRelative(p, name))
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HashRecord{}, err
	}

	pairs := make([]childDigest, len(names))
	var children []string
	for i, name := range names {
		pairs[i] = childDigest{name: name, digest: records[i].Digest}
		if records[i].Kind == KindDirectory {
			for _, c := range records[i].Children {
				children = append(children, name+"/"+c)
			}
			continue
		}
		children = append(children, name)
	}
	return newDirectoryRecord(combineChildDigests(l.algorithm, pairs), children), nil
}

// loadSize is the engine's SizeLoader: the sum of file sizes at or below p.
func (l *recordLoader) loadSize(p string) (int64, error) {
	files, err := l.fs.FilesUnderPath(p)
	if err != nil {
		return 0, err
	}
	var size int64
	for _, f := range files {
		n, err := l.fs.FileSize(f)
		if err != nil {
			return 0, err
		}
		size += n
	}
	return size, nil
}

// recordFor classifies p from the current filesystem state and attaches a
// caller-supplied digest to it.
func (l *recordLoader) recordFor(p string, digest HashCode) (HashRecord, error) {
	if l.fs.IsDirectory(p) {
		files, err := l.fs.FilesUnderPath(p)
		if err != nil {
			return HashRecord{}, err
		}
		children := make([]string, len(files))
		for i, f := range files {
			children[i] = relativeTo(p, f)
		}
		return newDirectoryRecord(digest, children), nil
	}
	if l.isArchive(p) {
		members, err := l.fs.ReadArchiveMembers(p)
		if err != nil {
			return HashRecord{}, err
		}
		return newArchiveRecord(digest, members, l.algorithm), nil
	}
	return newFileRecord(digest), nil
}
