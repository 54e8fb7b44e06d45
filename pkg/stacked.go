package filehashcache

import (
	"github.com/jmgilman/go/errors"
)

// StackedFileHashCache routes each absolute path to the first of several
// caches that will answer for it. Typical stacks hold the project cache, the
// build output cache and the root caches, in that order. Relative paths are
// rejected: the stack cannot tell which root they belong to.
type StackedFileHashCache struct {
	caches []*FileHashCache
}

// NewStackedFileHashCache stacks caches in priority order.
func NewStackedFileHashCache(caches ...*FileHashCache) *StackedFileHashCache {
	return &StackedFileHashCache{caches: caches}
}

// Caches returns the stacked caches in priority order.
func (s *StackedFileHashCache) Caches() []*FileHashCache {
	return s.caches
}

// lookup finds the cache that will answer for the absolute path p and p
// relative to that cache's root.
func (s *StackedFileHashCache) lookup(p string) (*FileHashCache, string, error) {
	if !isAbsolutePath(p) {
		return nil, "", errors.Newf(errors.CodeInvalidInput, "stacked cache needs an absolute path, got %s", p)
	}
	for _, cache := range s.caches {
		rel, ok := cache.fs.RelativizeToRoot(p)
		if !ok {
			continue
		}
		if will, err := cache.WillGet(rel); err == nil && will {
			return cache, rel, nil
		}
	}
	return nil, "", errors.Newf(errors.CodeNotFound, "no cache will answer for %s", p)
}

// WillGet reports whether any stacked cache will answer for p.
func (s *StackedFileHashCache) WillGet(p string) bool {
	_, _, err := s.lookup(p)
	return err == nil
}

// Get returns the digest of p from the owning cache.
func (s *StackedFileHashCache) Get(p string) (HashCode, error) {
	cache, rel, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	return cache.Get(rel)
}

// GetArchiveMember returns the digest of an archive entry from the cache
// owning the archive.
func (s *StackedFileHashCache) GetArchiveMember(member ArchiveMemberPath) (HashCode, error) {
	cache, rel, err := s.lookup(member.ArchivePath)
	if err != nil {
		return nil, err
	}
	member.ArchivePath = rel
	return cache.GetArchiveMember(member)
}

// GetSize returns the size of p from the owning cache.
func (s *StackedFileHashCache) GetSize(p string) (int64, error) {
	cache, rel, err := s.lookup(p)
	if err != nil {
		return 0, err
	}
	return cache.GetSize(rel)
}

// Set installs a precomputed digest in the owning cache.
func (s *StackedFileHashCache) Set(p string, digest HashCode) error {
	cache, rel, err := s.lookup(p)
	if err != nil {
		return err
	}
	return cache.Set(rel, digest)
}

// Invalidate drops the absolute path p from every cache whose root contains
// it. The path may no longer exist, so ownership is not consulted.
func (s *StackedFileHashCache) Invalidate(p string) {
	if !isAbsolutePath(p) {
		return
	}
	for _, cache := range s.caches {
		if rel, ok := cache.fs.RelativizeToRoot(p); ok {
			cache.Invalidate(rel)
		}
	}
}

// InvalidateAll empties every stacked cache.
func (s *StackedFileHashCache) InvalidateAll() {
	for _, cache := range s.caches {
		cache.InvalidateAll()
	}
}

// Verify audits every stacked cache and aggregates the results.
// Mismatching paths are reported relative to their cache's root.
func (s *StackedFileHashCache) Verify() (VerificationResult, error) {
	var result VerificationResult
	for _, cache := range s.caches {
		r, err := cache.Verify()
		if err != nil {
			return VerificationResult{}, errors.Wrapf(err, CodeIO, "verification of cache at %s failed", cache.fs.Root())
		}
		result.merge(r)
	}
	return result, nil
}

// StatsEvents concatenates the counters of every stacked cache.
func (s *StackedFileHashCache) StatsEvents() []StatsEvent {
	var events []StatsEvent
	for _, cache := range s.caches {
		events = append(events, cache.StatsEvents()...)
	}
	return events
}
