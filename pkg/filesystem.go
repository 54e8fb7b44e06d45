package filehashcache

import (
	"archive/zip"
	"bytes"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
)

// ProjectFilesystem is the view of one filesystem root that a cache hashes
// against. All paths it accepts are slash-separated and relative to Root.
type ProjectFilesystem struct {
	root   string
	fsys   core.FS
	ignore *IgnoreManager
}

// NewProjectFilesystem wraps fsys, which must already be scoped to root.
// A nil ignore manager ignores nothing.
func NewProjectFilesystem(root string, fsys core.FS, ignore *IgnoreManager) *ProjectFilesystem {
	if ignore == nil {
		ignore = NewEmptyIgnoreManager()
	}
	return &ProjectFilesystem{root: root, fsys: fsys, ignore: ignore}
}

// OpenProjectFilesystem opens the on-disk directory root, loading the
// default ignore patterns plus any in root/.fhcache/ignore.
func OpenProjectFilesystem(root string) (*ProjectFilesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidInput, "cannot resolve project root %s", root)
	}
	fsys, err := billy.NewLocal().Chroot(abs)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot open project root %s", abs)
	}
	ignore := NewIgnoreManager()
	if err := ignore.LoadIgnoreFile(fsys); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "cannot load ignore patterns")
	}
	return NewProjectFilesystem(abs, fsys, ignore), nil
}

// Root returns the absolute root this filesystem is scoped to.
func (pf *ProjectFilesystem) Root() string {
	return pf.root
}

// FS returns the underlying filesystem handle.
func (pf *ProjectFilesystem) FS() core.FS {
	return pf.fsys
}

// IgnoreManager returns the ignore policy of this filesystem.
func (pf *ProjectFilesystem) IgnoreManager() *IgnoreManager {
	return pf.ignore
}

// IsIgnored reports whether the ignore patterns exclude relPath.
func (pf *ProjectFilesystem) IsIgnored(relPath string) bool {
	return pf.ignore.ShouldIgnore(relPath)
}

// Exists reports whether relPath exists. Errors other than not-exist
// are treated as absent.
func (pf *ProjectFilesystem) Exists(relPath string) bool {
	ok, err := pf.fsys.Exists(relPath)
	return err == nil && ok
}

// IsDirectory reports whether relPath is an existing directory.
func (pf *ProjectFilesystem) IsDirectory(relPath string) bool {
	info, err := pf.fsys.Stat(relPath)
	return err == nil && info.IsDir()
}

// FileSize returns the size in bytes of a single file.
func (pf *ProjectFilesystem) FileSize(relPath string) (int64, error) {
	info, err := pf.fsys.Stat(relPath)
	if err != nil {
		return 0, errors.Wrapf(err, CodeIO, "cannot stat %s", relPath)
	}
	return info.Size(), nil
}

// ListChildren returns the names of the non-ignored entries of a directory.
func (pf *ProjectFilesystem) ListChildren(relPath string) ([]string, error) {
	entries, err := pf.fsys.ReadDir(relPath)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot list %s", relPath)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if pf.IsIgnored(joinRelative(relPath, entry.Name())) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// FilesUnderPath returns every non-ignored file at or below relPath,
// root-relative and sorted. A file returns itself.
func (pf *ProjectFilesystem) FilesUnderPath(relPath string) ([]string, error) {
	var files []string
	err := pf.fsys.Walk(relPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		p = filepath.ToSlash(p)
		if p != relPath && pf.IsIgnored(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot walk %s", relPath)
	}
	slices.Sort(files)
	return files, nil
}

// Digest streams the content of relPath through the given algorithm.
// The file handle is closed on every return path.
func (pf *ProjectFilesystem) Digest(relPath string, algorithm *HashAlgorithm) (HashCode, error) {
	f, err := pf.fsys.Open(relPath)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot open %s", relPath)
	}
	defer f.Close()

	digest, err := hashReader(f, algorithm)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot read %s", relPath)
	}
	return digest, nil
}

// ReadArchiveMembers lists the file entries of a zip-format archive.
func (pf *ProjectFilesystem) ReadArchiveMembers(relPath string) ([]string, error) {
	data, err := pf.fsys.ReadFile(relPath)
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "cannot read archive %s", relPath)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrapf(err, CodeIO, "unreadable archive %s", relPath)
	}
	members := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, normaliseMemberPath(f.Name))
	}
	slices.Sort(members)
	return slices.Compact(members), nil
}

// RelativizeToRoot converts an absolute path into this filesystem's
// root-relative form. ok is false when abs lies outside the root.
func (pf *ProjectFilesystem) RelativizeToRoot(abs string) (string, bool) {
	rel, err := filepath.Rel(pf.root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// isAbsolutePath treats both OS-absolute and slash-rooted paths as absolute.
func isAbsolutePath(p string) bool {
	return filepath.IsAbs(p) || strings.HasPrefix(filepath.ToSlash(p), "/")
}

// cleanRelative normalises a root-relative path. ok is false when the path
// escapes the root.
func cleanRelative(p string) (string, bool) {
	cleaned := path.Clean(filepath.ToSlash(p))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// joinRelative joins a child name onto a root-relative directory.
func joinRelative(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

// relativeTo strips the dir prefix from a root-relative descendant path.
func relativeTo(dir, p string) string {
	if dir == "" || dir == "." {
		return p
	}
	return strings.TrimPrefix(p, dir+"/")
}
