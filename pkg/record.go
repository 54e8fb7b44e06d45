package filehashcache

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/jmgilman/go/errors"
)

// Kind classifies what a cached path was when its record was produced.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindArchive
)

// String returns the upper-case name used in snapshots and logs.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDirectory:
		return "DIRECTORY"
	case KindArchive:
		return "ARCHIVE"
	default:
		return "UNKNOWN"
	}
}

// HashRecord is the cached knowledge about one root-relative path.
//
// Children is only set for directories and lists the descendant files the
// digest covers, relative to the directory. Members is only set for
// archives and lists the entry names found in the archive. Both are sorted
// and are used for consistency checks, never to order recomputation.
type HashRecord struct {
	Kind     Kind
	Digest   HashCode
	Children []string
	Members  []string

	// algorithm derives member digests for archives; nil means sha1
	algorithm *HashAlgorithm
}

func newFileRecord(digest HashCode) HashRecord {
	return HashRecord{Kind: KindFile, Digest: digest}
}

func newDirectoryRecord(digest HashCode, children []string) HashRecord {
	children = slices.Clone(children)
	slices.Sort(children)
	return HashRecord{Kind: KindDirectory, Digest: digest, Children: slices.Compact(children)}
}

func newArchiveRecord(digest HashCode, members []string, algorithm *HashAlgorithm) HashRecord {
	members = slices.Clone(members)
	slices.Sort(members)
	return HashRecord{Kind: KindArchive, Digest: digest, Members: slices.Compact(members), algorithm: algorithm}
}

// Equal compares kind, digest, children and members.
func (r HashRecord) Equal(other HashRecord) bool {
	return r.Kind == other.Kind &&
		r.Digest.Equal(other.Digest) &&
		slices.Equal(r.Children, other.Children) &&
		slices.Equal(r.Members, other.Members)
}

// String renders the record for logs.
func (r HashRecord) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Digest)
}

// MemberDigest returns the digest of one entry inside an archive, derived
// from the archive digest and the entry path only.
func (r HashRecord) MemberDigest(member string) (HashCode, error) {
	if r.Kind != KindArchive {
		return nil, errors.Newf(errors.CodeInvalidInput, "record of kind %s has no archive members", r.Kind)
	}
	member = normaliseMemberPath(member)
	if _, found := slices.BinarySearch(r.Members, member); !found {
		return nil, errors.Newf(errors.CodeNotFound, "archive has no member %q", member)
	}

	algorithm := r.algorithm
	if algorithm == nil {
		algorithm, _ = GetHashAlgorithm(DefaultHashAlgorithm)
	}
	hasher := algorithm.NewFunc()
	hasher.Write(r.Digest)
	putStringAndLength(hasher, member)
	return HashCode(hasher.Sum(nil)), nil
}

// ArchiveMemberPath addresses one entry inside an archive file.
type ArchiveMemberPath struct {
	ArchivePath string
	MemberPath  string
}

// IsAbsolute reports whether the archive path is absolute.
func (m ArchiveMemberPath) IsAbsolute() bool {
	return isAbsolutePath(m.ArchivePath)
}

func (m ArchiveMemberPath) String() string {
	return m.ArchivePath + "!/" + normaliseMemberPath(m.MemberPath)
}

// normaliseMemberPath cleans an archive entry name the way zip stores it:
// forward slashes and no leading slash.
func normaliseMemberPath(member string) string {
	member = strings.ReplaceAll(member, "\\", "/")
	member = strings.TrimPrefix(path.Clean("/"+member), "/")
	return member
}
