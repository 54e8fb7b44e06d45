package filehashcache

import (
	"slices"

	"github.com/jmgilman/go/errors"
)

// VerificationResult reports an offline consistency audit.
type VerificationResult struct {
	CachesExamined     int
	FilesExamined      int
	VerificationErrors []string // paths whose recomputed record differs, sorted
}

// OK reports whether no mismatches were found.
func (r VerificationResult) OK() bool {
	return len(r.VerificationErrors) == 0
}

// merge folds another cache's result into r.
func (r *VerificationResult) merge(other VerificationResult) {
	r.CachesExamined += other.CachesExamined
	r.FilesExamined += other.FilesExamined
	r.VerificationErrors = append(r.VerificationErrors, other.VerificationErrors...)
}

// Verify recomputes every cached path from the filesystem and compares it
// to the cached record. Mismatches are reported, not returned as errors; an
// I/O failure while recomputing fails the whole audit.
//
// Recomputation goes through a scratch engine, so a directory is checked
// against fresh child digests rather than the possibly stale cached ones.
func (c *FileHashCache) Verify() (VerificationResult, error) {
	scratch := *c.loader
	scratch.logger = nopLogger()
	scratch.engine = newLoadingEngine(scratch.loadRecord, scratch.loadSize, false)

	cached := c.engine.AsMap()
	paths := make([]string, 0, len(cached))
	for p := range cached {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	result := VerificationResult{CachesExamined: 1, FilesExamined: len(paths)}
	for _, p := range paths {
		current, err := scratch.engine.GetRecord(p)
		if err != nil {
			return VerificationResult{}, errors.Wrapf(err, CodeIO, "verification of %s could not complete", p)
		}
		if !cached[p].Equal(current) {
			c.logger.VerboseLog(1, "verify mismatch %s: cached %s, current %s", p, cached[p], current)
			result.VerificationErrors = append(result.VerificationErrors, p)
		}
	}
	c.logger.VerboseLog(2, "verified %d cached paths, %d mismatches", result.FilesExamined, len(result.VerificationErrors))
	return result, nil
}
