// Package objectstore is the remote artifact store: an S3-compatible bucket
// holding one object per packed artifact.
package objectstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("object not found")

// User metadata keys written on upload.
const (
	MetaDigest    = "Digest"
	MetaAlgorithm = "Digest-Algorithm"
)

// ObjectInfo describes a stored object. Digest and Algorithm are empty for
// objects that were not uploaded by this tool.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
	Digest       string
	Algorithm    string
}

// Matches reports whether the object holds content with the given digest.
// Objects without a recorded digest fall back to the ETag, which equals the
// MD5 of the content only for single-part uploads.
func (o *ObjectInfo) Matches(algorithm, digest string) bool {
	if o == nil || digest == "" {
		return false
	}
	if o.Digest != "" {
		return strings.EqualFold(o.Algorithm, algorithm) && strings.EqualFold(o.Digest, digest)
	}
	if algorithm != "md5" || strings.Contains(o.ETag, "-") {
		return false
	}
	return strings.EqualFold(strings.Trim(o.ETag, `"`), digest)
}

// PutOptions carries the content digest recorded alongside an upload.
type PutOptions struct {
	ContentType string
	Digest      string
	Algorithm   string
}

// Store operations used by the pack pipeline and cleanup.
type Store interface {
	Bucket() string
	BucketExists(ctx context.Context) (bool, error)
	// Stat returns ErrNotFound when key does not exist.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Put uploads the file at path under key.
	Put(ctx context.Context, key, path string, opts PutOptions) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Remove(ctx context.Context, key string) error
}

func lookupMeta(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
