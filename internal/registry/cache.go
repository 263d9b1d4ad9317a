package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/zeebo/blake3"

	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
)

// DefaultCacheTTL is how long a fetched document stays fresh.
const DefaultCacheTTL = time.Hour

var ErrCacheMiss = errors.New("forced cache has no entry")

// CachePolicy controls the fetch cache. ForceCache wins over SkipCache and
// serves stale entries; with ForceCache a missing entry is an error.
type CachePolicy struct {
	SkipCache  bool
	ForceCache bool
	TTL        time.Duration
}

type diskEntry struct {
	Contents string `json:"contents"`
	// Expires is in Unix milliseconds.
	Expires int64 `json:"expires"`
}

// Cache is a two level (memory, then disk) read-through cache in front of
// another Fetcher.
type Cache struct {
	policy CachePolicy
	dir    string
	next   Fetcher
	mem    *ttlcache.Cache[string, string]
	now    func() time.Time
}

func NewCache(policy CachePolicy, dir string, next Fetcher) *Cache {
	if policy.TTL <= 0 {
		policy.TTL = DefaultCacheTTL
	}
	return &Cache{
		policy: policy,
		dir:    dir,
		next:   next,
		mem: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](policy.TTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		now: time.Now,
	}
}

func (c *Cache) Dir() string { return c.dir }

// entryPath names the disk entry for url.
func (c *Cache) entryPath(url string) string {
	sum := blake3.Sum256([]byte(url))
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", sum[:16]))
}

func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	log := logger.Logger()

	if c.policy.SkipCache && !c.policy.ForceCache {
		return c.next.Fetch(ctx, url)
	}

	if item := c.mem.Get(url); item != nil {
		log.Debugf("Fetch cache hit (memory): %s", url)
		return []byte(item.Value()), nil
	}

	path := c.entryPath(url)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var entry diskEntry
		if jerr := json.Unmarshal(data, &entry); jerr != nil {
			log.Warnf("Ignoring corrupt cache entry %s: %v", path, jerr)
			break
		}
		expires := time.UnixMilli(entry.Expires)
		if c.policy.ForceCache || c.now().Before(expires) {
			log.Debugf("Fetch cache hit (disk): %s", url)
			ttl := expires.Sub(c.now())
			if ttl <= 0 {
				ttl = ttlcache.NoTTL
			}
			c.mem.Set(url, entry.Contents, ttl)
			return []byte(entry.Contents), nil
		}
	case errors.Is(err, os.ErrNotExist):
		if c.policy.ForceCache {
			return nil, fmt.Errorf("%w: %s", ErrCacheMiss, url)
		}
	default:
		log.Warnf("Reading cache entry %s: %v", path, err)
	}

	body, err := c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	expires := c.now().Add(c.policy.TTL)
	c.mem.Set(url, string(body), c.policy.TTL)
	if err := c.store(path, diskEntry{Contents: string(body), Expires: expires.UnixMilli()}); err != nil {
		log.Warnf("Could not persist fetch cache entry: %v", err)
	}
	return body, nil
}

func (c *Cache) store(path string, entry diskEntry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return security.SafeWriteFile(path, data, 0o644, security.RejectSymlinks)
}
