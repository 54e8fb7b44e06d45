package filehashcache

import (
	"slices"
	"strings"

	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/semaphore"
)

// Options configure a FileHashCache. They are fixed at construction.
type Options struct {
	// Engine selects the memoising engine. EngineCombo runs the baseline
	// and the skiplist engine side by side and records disagreements.
	Engine EngineKind

	// CheckIgnoredPaths rejects reads and writes of ignored paths with an
	// invalid-input error instead of reading through.
	CheckIgnoredPaths bool

	// StrictInvalidation discards a load's value when the path was
	// invalidated while the load was running.
	StrictInvalidation bool

	Algorithm         string // sha1 when empty
	HashWorkers       int    // concurrent file reads; DefaultHashWorkers when zero
	ArchiveExtensions []string
	Logger            *Logger
}

func (o Options) normalise() (Options, *HashAlgorithm, error) {
	if o.Algorithm == "" {
		o.Algorithm = DefaultHashAlgorithm
	}
	algorithm, err := GetHashAlgorithm(o.Algorithm)
	if err != nil {
		return o, nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid cache options")
	}
	if o.HashWorkers == 0 {
		o.HashWorkers = DefaultHashWorkers
	}
	if err := ValidateHashWorkers(o.HashWorkers); err != nil {
		return o, nil, err
	}
	if o.ArchiveExtensions == nil {
		o.ArchiveExtensions = DefaultArchiveExtensions
	}
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
	return o, algorithm, nil
}

// FileHashCache memoises digests of paths relative to one filesystem root.
type FileHashCache struct {
	fs           *ProjectFilesystem
	outputDir    string
	checkIgnored bool
	loader       *recordLoader
	engine       Engine
	combo        *comboEngine
	logger       *Logger
}

// NewDefaultFileHashCache creates a cache for the whole project; paths are
// ignored according to the filesystem's ignore patterns.
func NewDefaultFileHashCache(fs *ProjectFilesystem, opts Options) (*FileHashCache, error) {
	return newFileHashCache(fs, "", opts)
}

// NewOutputFileHashCache creates a cache that only trusts paths at or below
// outputDir, the build output directory.
func NewOutputFileHashCache(fs *ProjectFilesystem, outputDir string, opts Options) (*FileHashCache, error) {
	if isAbsolutePath(outputDir) {
		return nil, errors.Newf(errors.CodeInvalidInput, "output directory must be relative: %s", outputDir)
	}
	cleaned, ok := cleanRelative(outputDir)
	if !ok || cleaned == "." {
		return nil, errors.Newf(errors.CodeInvalidInput, "invalid output directory: %s", outputDir)
	}
	return newFileHashCache(fs, cleaned, opts)
}

func newFileHashCache(fs *ProjectFilesystem, outputDir string, opts Options) (*FileHashCache, error) {
	opts, algorithm, err := opts.normalise()
	if err != nil {
		return nil, err
	}

	c := &FileHashCache{
		fs:           fs,
		outputDir:    outputDir,
		checkIgnored: opts.CheckIgnoredPaths,
		logger:       opts.Logger,
	}
	c.loader = &recordLoader{
		fs:                fs,
		algorithm:         algorithm,
		archiveExtensions: opts.ArchiveExtensions,
		hashWorkers:       opts.HashWorkers,
		reads:             semaphore.NewWeighted(int64(opts.HashWorkers)),
		logger:            opts.Logger,
	}
	if opts.Engine == EngineCombo {
		c.combo = newComboEngine(
			newLoadingEngine(c.loader.loadRecord, c.loader.loadSize, opts.StrictInvalidation),
			newSkiplistEngine(c.loader.loadRecord, c.loader.loadSize, opts.StrictInvalidation),
			opts.Logger,
		)
		c.engine = c.combo
	} else {
		c.engine = NewEngine(opts.Engine, c.loader.loadRecord, c.loader.loadSize, opts.StrictInvalidation, opts.Logger)
	}
	c.loader.engine = c.engine

	c.logger.VerboseLog(2, "file hash cache for %s: engine=%s algorithm=%s output=%q strict=%t",
		fs.Root(), opts.Engine, algorithm.Name, outputDir, opts.CheckIgnoredPaths)
	return c, nil
}

// isIgnored applies the cache's trust policy: an output cache trusts only
// its output directory, any other cache defers to the ignore patterns.
func (c *FileHashCache) isIgnored(p string) bool {
	if c.outputDir != "" {
		return p != c.outputDir && !strings.HasPrefix(p, c.outputDir+"/")
	}
	return c.fs.IsIgnored(p)
}

// checkPath validates a root-relative path and returns its cleaned form.
func (c *FileHashCache) checkPath(p string) (string, error) {
	if isAbsolutePath(p) {
		return "", errors.Newf(errors.CodeInvalidInput, "path must be relative to %s: %s", c.fs.Root(), p)
	}
	cleaned, ok := cleanRelative(p)
	if !ok {
		return "", errors.Newf(errors.CodeInvalidInput, "path escapes %s: %s", c.fs.Root(), p)
	}
	if c.checkIgnored && c.isIgnored(cleaned) {
		return "", errors.Newf(errors.CodeInvalidInput, "path is ignored: %s", cleaned)
	}
	return cleaned, nil
}

// WillGet reports whether this cache is authoritative for p: it already
// holds p, or p exists on disk and is not ignored.
func (c *FileHashCache) WillGet(p string) (bool, error) {
	cleaned, err := c.checkPath(p)
	if err != nil {
		return false, err
	}
	if _, ok := c.engine.GetIfPresent(cleaned); ok {
		return true, nil
	}
	return c.fs.Exists(cleaned) && !c.isIgnored(cleaned), nil
}

// WillGetArchiveMember reports WillGet for the member's archive.
func (c *FileHashCache) WillGetArchiveMember(member ArchiveMemberPath) (bool, error) {
	return c.WillGet(member.ArchivePath)
}

// Get returns the digest of a root-relative file, directory or archive.
func (c *FileHashCache) Get(p string) (HashCode, error) {
	cleaned, err := c.checkPath(p)
	if err != nil {
		return nil, err
	}
	return c.engine.Get(cleaned)
}

// GetArchiveMember returns the digest of one entry inside an archive.
func (c *FileHashCache) GetArchiveMember(member ArchiveMemberPath) (HashCode, error) {
	cleaned, err := c.checkPath(member.ArchivePath)
	if err != nil {
		return nil, err
	}
	member.ArchivePath = cleaned
	return c.engine.GetArchiveMember(member)
}

// GetSize returns the total size in bytes of the files at or below p.
func (c *FileHashCache) GetSize(p string) (int64, error) {
	cleaned, err := c.checkPath(p)
	if err != nil {
		return 0, err
	}
	return c.engine.GetSize(cleaned)
}

// Set installs a digest the caller already computed. The kind is taken
// from the filesystem, not from the caller.
func (c *FileHashCache) Set(p string, digest HashCode) error {
	cleaned, err := c.checkPath(p)
	if err != nil {
		return err
	}
	record, err := c.loader.recordFor(cleaned, digest)
	if err != nil {
		return err
	}
	c.logger.VerboseLog(3, "set %s = %s", cleaned, record)
	c.engine.Put(cleaned, record)
	return nil
}

// Invalidate drops whatever is cached for exactly p.
func (c *FileHashCache) Invalidate(p string) {
	if cleaned, ok := cleanRelative(p); ok {
		c.engine.Invalidate(cleaned)
	}
}

// InvalidateAll drops every cached entry.
func (c *FileHashCache) InvalidateAll() {
	c.engine.InvalidateAll()
}

// Filesystem returns the filesystem this cache hashes against.
func (c *FileHashCache) Filesystem() *ProjectFilesystem {
	return c.fs
}

// StatsEvents returns hit/miss counters of the underlying engines.
func (c *FileHashCache) StatsEvents() []StatsEvent {
	return c.engine.StatsEvents()
}

// ResetStats zeroes the hit/miss counters.
func (c *FileHashCache) ResetStats() {
	c.engine.ResetStats()
}

// Discrepancies returns engine disagreements recorded when the cache was
// built with EngineCombo, and nil otherwise.
func (c *FileHashCache) Discrepancies() []Discrepancy {
	if c.combo == nil {
		return nil
	}
	return c.combo.Discrepancies()
}

// CachedPaths returns the currently cached paths in sorted order.
func (c *FileHashCache) CachedPaths() []string {
	snapshot := c.engine.AsMap()
	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
