package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestObjectInfoMatches(t *testing.T) {
	tests := []struct {
		name      string
		info      *ObjectInfo
		algorithm string
		digest    string
		expected  bool
	}{
		{"recorded digest", &ObjectInfo{Digest: "abc", Algorithm: "blake3"}, "blake3", "abc", true},
		{"recorded digest differs", &ObjectInfo{Digest: "abc", Algorithm: "blake3"}, "blake3", "def", false},
		{"algorithm differs", &ObjectInfo{Digest: "abc", Algorithm: "md5", ETag: "abc"}, "blake3", "abc", false},
		{"etag fallback", &ObjectInfo{ETag: `"5d41402abc4b2a76b9719d911017c592"`}, "md5", "5d41402abc4b2a76b9719d911017c592", true},
		{"etag upper case", &ObjectInfo{ETag: "5D41402ABC4B2A76B9719D911017C592"}, "md5", "5d41402abc4b2a76b9719d911017c592", true},
		{"multipart etag", &ObjectInfo{ETag: "5d41402abc4b2a76b9719d911017c592-3"}, "md5", "5d41402abc4b2a76b9719d911017c592", false},
		{"etag not used for blake3", &ObjectInfo{ETag: "abc"}, "blake3", "abc", false},
		{"nil info", nil, "md5", "abc", false},
		{"empty digest", &ObjectInfo{ETag: ""}, "md5", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Matches(tt.algorithm, tt.digest); got != tt.expected {
				t.Errorf("Matches() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLookupMeta(t *testing.T) {
	meta := map[string]string{"X-Amz-Meta-Digest": "abc", "digest-algorithm": "md5"}
	if got := lookupMeta(meta, MetaDigest); got != "abc" {
		t.Errorf("expected prefixed key lookup, got %q", got)
	}
	if got := lookupMeta(meta, MetaAlgorithm); got != "md5" {
		t.Errorf("expected case-insensitive lookup, got %q", got)
	}
	if got := lookupMeta(nil, MetaDigest); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "next-15.0.0.tgz")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	s := NewMemoryStore("artifacts")
	if _, err := s.Stat(ctx, "next-15.0.0.tgz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, "next-15.0.0.tgz", path, PutOptions{Digest: "d1", Algorithm: "md5"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	info, err := s.Stat(ctx, "next-15.0.0.tgz")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Digest != "d1" || info.ETag != "5d41402abc4b2a76b9719d911017c592" || info.Size != 5 {
		t.Errorf("unexpected object info: %+v", info)
	}

	u, err := s.PresignedURL(ctx, "next-15.0.0.tgz", 24*time.Hour)
	if err != nil {
		t.Fatalf("PresignedURL failed: %v", err)
	}
	if !strings.Contains(u, "next-15.0.0.tgz") || !strings.Contains(u, "X-Amz-Expires=86400") {
		t.Errorf("unexpected presigned URL %q", u)
	}

	if s.Calls("Put") != 1 || s.Calls("Stat") != 2 {
		t.Errorf("unexpected call counts: put=%d stat=%d", s.Calls("Put"), s.Calls("Stat"))
	}
}

func TestMemoryStoreFailPuts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.tgz")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	s := NewMemoryStore("artifacts")
	s.FailPuts(errors.New("connection reset"))
	if err := s.Put(ctx, "a.tgz", path, PutOptions{}); err == nil {
		t.Fatal("expected first Put to fail")
	}
	if err := s.Put(ctx, "a.tgz", path, PutOptions{}); err != nil {
		t.Fatalf("expected second Put to succeed, got %v", err)
	}
	if _, ok := s.Object("a.tgz"); !ok {
		t.Error("expected object to be stored")
	}
}

func TestMemoryStoreListRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("artifacts")
	old := time.Now().Add(-48 * time.Hour)
	s.Seed("next-1.tgz", []byte("1"), old, PutOptions{})
	s.Seed("next-2.tgz", []byte("2"), time.Now(), PutOptions{})
	s.Seed("other.tgz", []byte("3"), old, PutOptions{})

	objs, err := s.List(ctx, "next-")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "next-1.tgz" {
		t.Fatalf("unexpected listing: %+v", objs)
	}

	if err := s.Remove(ctx, "next-1.tgz"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := s.Object("next-1.tgz"); ok {
		t.Error("expected object to be removed")
	}
}

func TestNewMinioStoreValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing endpoint", Config{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"missing keys", Config{Endpoint: "localhost:9000", Bucket: "b"}},
		{"missing bucket", Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMinioStore(tt.cfg); err == nil {
				t.Error("expected configuration error")
			}
		})
	}

	s, err := NewMinioStore(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	if err != nil {
		t.Fatalf("NewMinioStore failed: %v", err)
	}
	if s.Bucket() != "b" {
		t.Errorf("unexpected bucket %q", s.Bucket())
	}
}
