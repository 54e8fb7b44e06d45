package filehashcache

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/jmgilman/go/errors"
)

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return &HashAlgorithm{
			Name:    "sha1",
			TypeID:  HashTypeSHA1,
			Size:    HashSizeSHA1,
			NewFunc: func() hash.Hash { return sha1.New() },
		}, nil
	case "sha256":
		return &HashAlgorithm{
			Name:    "sha256",
			TypeID:  HashTypeSHA256,
			Size:    HashSizeSHA256,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	case "sha512":
		return &HashAlgorithm{
			Name:    "sha512",
			TypeID:  HashTypeSHA512,
			Size:    HashSizeSHA512,
			NewFunc: func() hash.Hash { return sha512.New() },
		}, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unsupported hash algorithm: %s", name)
	}
}

// HashCode is a fixed-size content digest.
type HashCode []byte

// String renders the digest as lowercase hex.
func (h HashCode) String() string {
	return hex.EncodeToString(h)
}

// Equal reports whether both digests hold the same bytes.
func (h HashCode) Equal(other HashCode) bool {
	return bytes.Equal(h, other)
}

// ParseHashCode decodes a hex digest as produced by HashCode.String.
func ParseHashCode(s string) (HashCode, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidInput, "invalid hash code %q", s)
	}
	return HashCode(b), nil
}

// hashReader streams r through a fresh hasher of the given algorithm.
func hashReader(r io.Reader, algorithm *HashAlgorithm) (HashCode, error) {
	hasher := algorithm.NewFunc()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, err
	}
	return HashCode(hasher.Sum(nil)), nil
}

// putStringAndLength writes a length-prefixed string so that adjacent
// fields cannot be confused ("ab"+"c" vs "a"+"bc").
func putStringAndLength(h hash.Hash, s string) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(s)))
	h.Write(length[:])
	h.Write([]byte(s))
}
