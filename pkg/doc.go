// Package filehashcache memoises content digests of files, directories and
// archive members for a build system, keyed by root-relative path.
//
// # Core API
//
// A FileHashCache hashes paths below one filesystem root:
//
//	fs, err := filehashcache.OpenProjectFilesystem("/path/to/project")
//	cache, err := filehashcache.NewDefaultFileHashCache(fs, filehashcache.Options{})
//
//	digest, err := cache.Get("src/main.go")
//	size, err := cache.GetSize("src")
//
// A directory digest combines the digests of its non-ignored children, so
// it changes whenever any file below it changes. Files ending in one of the
// archive extensions (.jar, .zip, .aar by default) also expose their entries:
//
//	digest, err := cache.GetArchiveMember(filehashcache.ArchiveMemberPath{
//		ArchivePath: "lib/dep.jar",
//		MemberPath:  "com/example/A.class",
//	})
//
// # Freshness
//
// The cache never watches the filesystem. Callers report changes:
//
//	cache.Invalidate("src/main.go")
//	cache.InvalidateAll()
//
// Invalidate removes exactly the named path; callers that change a file are
// expected to invalidate its ancestor directories as well. Verify recomputes
// every cached entry and reports the paths whose records went stale.
//
// # Engines
//
// Options.Engine selects the memoising engine. EngineCombo runs the
// map-backed baseline and the skiplist engine side by side and records each
// disagreement, returning the baseline's answer.
//
// # Stacks
//
// StackedFileHashCache routes absolute paths to the first cache that will
// answer for them; NewRootCaches supplies fallbacks for paths outside any
// project.
package filehashcache
