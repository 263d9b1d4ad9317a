package objectstore

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	info ObjectInfo
	data []byte
}

// MemoryStore is an in-process Store. It counts calls per operation and can
// be told to fail uploads, which makes it the store of choice in tests.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	exists  bool
	objects map[string]*memoryObject
	calls   map[string]int
	putErrs []error
	now     func() time.Time
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		exists:  true,
		objects: map[string]*memoryObject{},
		calls:   map[string]int{},
		now:     time.Now,
	}
}

// SetBucketExists controls the BucketExists answer.
func (m *MemoryStore) SetBucketExists(exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = exists
}

// FailPuts queues errors returned by the next Put calls, one per call.
func (m *MemoryStore) FailPuts(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErrs = append(m.putErrs, errs...)
}

// Seed stores data under key as if uploaded at modTime by another client.
func (m *MemoryStore) Seed(key string, data []byte, modTime time.Time, opts PutOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = newMemoryObject(key, data, modTime, opts)
}

// Calls returns how many times op (e.g. "Put") was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of store operations of any kind.
func (m *MemoryStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Object returns the stored bytes for key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

func (m *MemoryStore) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MemoryStore) Bucket() string { return m.bucket }

func (m *MemoryStore) BucketExists(ctx context.Context) (bool, error) {
	m.record("BucketExists")
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	m.record("Stat")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	info := obj.info
	return &info, nil
}

func (m *MemoryStore) Put(ctx context.Context, key, path string, opts PutOptions) error {
	m.record("Put")
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	var injected error
	if len(m.putErrs) > 0 {
		injected = m.putErrs[0]
		m.putErrs = m.putErrs[1:]
	}
	m.mu.Unlock()
	if injected != nil {
		return injected
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = newMemoryObject(key, data, m.now(), opts)
	return nil
}

func (m *MemoryStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.record("PresignedURL")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int64(ttl/time.Second)))
	return fmt.Sprintf("https://%s.memory.invalid/%s?%s", m.bucket, url.PathEscape(key), q.Encode()), nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.record("List")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.record("Remove")
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newMemoryObject(key string, data []byte, modTime time.Time, opts PutOptions) *memoryObject {
	return &memoryObject{
		data: append([]byte(nil), data...),
		info: ObjectInfo{
			Key:          key,
			ETag:         fmt.Sprintf("%x", md5.Sum(data)),
			Size:         int64(len(data)),
			LastModified: modTime,
			Digest:       opts.Digest,
			Algorithm:    opts.Algorithm,
		},
	}
}
