package filehashcache

import (
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/fs/billy"
	"golang.org/x/sys/unix"
)

// systemRoots lists the filesystem roots a host may have.
var systemRoots = []string{"/"}

// rootExists requires the root to be searchable, not just present.
func rootExists(root string) bool {
	return unix.Access(root, unix.X_OK) == nil
}

// NewRootCaches creates one cache per filesystem root of the host, so that
// absolute paths outside any project can still be hashed. Roots that do not
// exist are skipped. Root caches ignore nothing.
func NewRootCaches(opts Options) ([]*FileHashCache, error) {
	return newRootCaches(systemRoots, opts)
}

func newRootCaches(roots []string, opts Options) ([]*FileHashCache, error) {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger()
	}
	local := billy.NewLocal()
	var caches []*FileHashCache
	for _, root := range roots {
		if !rootExists(root) {
			logger.VerboseLog(2, "skipping absent filesystem root %s", root)
			continue
		}
		fsys, err := local.Chroot(root)
		if err != nil {
			return nil, errors.Wrapf(err, CodeIO, "cannot open filesystem root %s", root)
		}
		cache, err := NewDefaultFileHashCache(NewProjectFilesystem(root, fsys, NewEmptyIgnoreManager()), opts)
		if err != nil {
			return nil, err
		}
		caches = append(caches, cache)
	}
	return caches, nil
}
