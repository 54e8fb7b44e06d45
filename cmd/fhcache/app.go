package main

import (
	"fmt"
	"io"
	"path/filepath"

	filehashcache "github.com/mattkeenan/filehashcache/pkg"
)

// app holds the caches of one invocation.
type app struct {
	out      io.Writer
	errOut   io.Writer
	logger   *filehashcache.Logger
	project  *filehashcache.FileHashCache
	stack    *filehashcache.StackedFileHashCache
	shutdown <-chan struct{}
}

// newApp builds the cache stack: the project cache, then the build output
// cache when one is configured, then one cache per filesystem root.
func newApp(opts globalOptions, out, errOut io.Writer) (*app, error) {
	root, err := filepath.Abs(opts.root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve root %s: %w", opts.root, err)
	}
	cfg, err := loadConfig(opts, root)
	if err != nil {
		return nil, err
	}
	cacheOpts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	cacheOpts.Logger = filehashcache.NewLogger(errOut, cacheOpts.Logger.Level(), cfg.GetVerboseConfig().Debug)

	fs, err := filehashcache.OpenProjectFilesystem(root)
	if err != nil {
		return nil, err
	}
	project, err := filehashcache.NewDefaultFileHashCache(fs, cacheOpts)
	if err != nil {
		return nil, err
	}
	caches := []*filehashcache.FileHashCache{project}

	if outputDir := cfg.GetCacheConfig().OutputDir; outputDir != "" {
		output, err := filehashcache.NewOutputFileHashCache(fs, outputDir, cacheOpts)
		if err != nil {
			return nil, err
		}
		caches = append(caches, output)
	}

	roots, err := filehashcache.NewRootCaches(cacheOpts)
	if err != nil {
		return nil, err
	}
	caches = append(caches, roots...)

	return &app{
		out:     out,
		errOut:  errOut,
		logger:  cacheOpts.Logger,
		project: project,
		stack:   filehashcache.NewStackedFileHashCache(caches...),
	}, nil
}

// forEachPath resolves each argument and calls fn until a signal arrives.
func (a *app) forEachPath(args []string, fn func(arg, abs string) error) error {
	if len(args) == 0 {
		return fmt.Errorf("no paths given")
	}
	for _, arg := range args {
		if interrupted(a.shutdown) {
			return fmt.Errorf("interrupted")
		}
		abs, err := absPath(arg)
		if err != nil {
			return fmt.Errorf("cannot resolve %s: %w", arg, err)
		}
		if err := fn(arg, abs); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) hashOne(arg, abs string) error {
	var digest filehashcache.HashCode
	var err error
	if archive, member, ok := parseTarget(arg); ok {
		archiveAbs, absErr := absPath(archive)
		if absErr != nil {
			return fmt.Errorf("cannot resolve %s: %w", archive, absErr)
		}
		digest, err = a.stack.GetArchiveMember(filehashcache.ArchiveMemberPath{ArchivePath: archiveAbs, MemberPath: member})
	} else {
		digest, err = a.stack.Get(abs)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  %s\n", digest, arg)
	return nil
}

func (a *app) cmdHash(args []string) error {
	return a.forEachPath(args, a.hashOne)
}

func (a *app) cmdSize(args []string) error {
	return a.forEachPath(args, func(arg, abs string) error {
		size, err := a.stack.GetSize(abs)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d\t%s\n", size, arg)
		return nil
	})
}

func (a *app) cmdVerify(args []string) error {
	if err := a.forEachPath(args, a.hashOneQuietly); err != nil {
		return err
	}

	result, err := a.stack.Verify()
	if err != nil {
		return err
	}
	for _, p := range result.VerificationErrors {
		fmt.Fprintf(a.out, "MISMATCH %s\n", p)
	}
	fmt.Fprintf(a.out, "verified %d paths in %d caches, %d mismatches\n",
		result.FilesExamined, result.CachesExamined, len(result.VerificationErrors))
	if !result.OK() {
		return fmt.Errorf("verification found %d mismatches", len(result.VerificationErrors))
	}
	return nil
}

func (a *app) cmdDump(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("dump requires an output file")
	}
	output, paths := args[0], args[1:]
	if len(paths) > 0 {
		if err := a.forEachPath(paths, a.hashOneQuietly); err != nil {
			return err
		}
	}
	count, err := a.project.WriteSnapshot(output)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d entries to %s\n", count, output)
	return nil
}

func (a *app) hashOneQuietly(arg, abs string) error {
	saved := a.out
	a.out = io.Discard
	defer func() { a.out = saved }()
	return a.hashOne(arg, abs)
}

// reportStats logs engine counters and any engine disagreements.
func (a *app) reportStats() {
	for _, event := range a.stack.StatsEvents() {
		a.logger.VerboseLog(1, "%s", event)
	}
	for _, cache := range a.stack.Caches() {
		for _, d := range cache.Discrepancies() {
			fmt.Fprintf(a.errOut, "engine discrepancy: %s\n", d)
		}
	}
}
