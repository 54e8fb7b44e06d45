package filehashcache

import (
	"strings"

	"github.com/jmgilman/go/errors"
)

// Repository layout constants
const (
	StateDirName   = ".fhcache"
	ConfigFileName = "config"
	IgnoreFileName = "ignore"
)

// Hash type constants
const (
	HashTypeSHA1   uint16 = 1 // SHA-1 (20 bytes)
	HashTypeSHA256 uint16 = 2 // SHA-256 (32 bytes)
	HashTypeSHA512 uint16 = 3 // SHA-512 (64 bytes)
)

// Hash size constants
const (
	HashSizeSHA1   = 20 // SHA-1 hash size in bytes
	HashSizeSHA256 = 32 // SHA-256 hash size in bytes
	HashSizeSHA512 = 64 // SHA-512 hash size in bytes
)

// DefaultHashAlgorithm is the 160-bit digest used unless configured otherwise.
const DefaultHashAlgorithm = "sha1"

// DefaultHashWorkers bounds concurrent file reads per cache and concurrent
// child lookups per directory.
const DefaultHashWorkers = 4

// DefaultArchiveExtensions lists the file suffixes hashed as archives.
var DefaultArchiveExtensions = []string{".jar", ".zip", ".aar"}

// CodeIO marks failures reading file content or metadata while computing
// a digest or size.
const CodeIO errors.ErrorCode = "IO_ERROR"

// HashTypeFromName returns the hash type constant from a name (case-insensitive)
func HashTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "sha1":
		return HashTypeSHA1, true
	case "sha256":
		return HashTypeSHA256, true
	case "sha512":
		return HashTypeSHA512, true
	default:
		return 0, false
	}
}
