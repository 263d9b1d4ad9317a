// Package digest computes content digests of artifacts. Digests are used for
// change detection and upload dedup, not for integrity against tampering.
package digest

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// MD5 matches the ETag S3-compatible stores report for single-part
	// uploads, which lets dedup work against objects uploaded by other tools.
	MD5    = "md5"
	BLAKE3 = "blake3"
)

// Hasher digests files.
type Hasher interface {
	Algorithm() string
	// Sum returns the lower-case hex digest of the file at path.
	Sum(path string) (string, error)
}

type fileHasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a Hasher for algorithm. The empty string selects MD5.
func New(algorithm string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", MD5:
		return &fileHasher{algorithm: MD5, newHash: md5.New}, nil
	case BLAKE3:
		return &fileHasher{algorithm: BLAKE3, newHash: func() hash.Hash { return blake3.New() }}, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algorithm)
	}
}

func (h *fileHasher) Algorithm() string { return h.algorithm }

func (h *fileHasher) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for digest: %w", path, err)
	}
	defer f.Close()

	sum := h.newHash()
	if _, err := io.Copy(sum, f); err != nil {
		return "", fmt.Errorf("reading %s for digest: %w", path, err)
	}
	return fmt.Sprintf("%x", sum.Sum(nil)), nil
}
