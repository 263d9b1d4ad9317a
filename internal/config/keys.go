package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrUnknownKey = errors.New("unknown config key")

// Key describes one setting reachable from config get/set.
type Key struct {
	Name        string
	Description string
	// Secret values are masked in listings and read without echo.
	Secret bool

	get func(*GlobalConfig) string
	set func(*GlobalConfig, string) error
}

func stringKey(name, desc string, field func(*GlobalConfig) *string) Key {
	return Key{
		Name:        name,
		Description: desc,
		get:         func(gc *GlobalConfig) string { return *field(gc) },
		set: func(gc *GlobalConfig, v string) error {
			*field(gc) = v
			return nil
		},
	}
}

func valueKey(name, desc string, secret bool, field func(*GlobalConfig) *Value) Key {
	return Key{
		Name:        name,
		Description: desc,
		Secret:      secret,
		get: func(gc *GlobalConfig) string {
			if secret {
				return field(gc).Masked()
			}
			return field(gc).Raw()
		},
		set: func(gc *GlobalConfig, v string) error {
			*field(gc) = ParseValue(v)
			return nil
		},
	}
}

func intKey(name, desc string, field func(*GlobalConfig) *int) Key {
	return Key{
		Name:        name,
		Description: desc,
		get:         func(gc *GlobalConfig) string { return strconv.Itoa(*field(gc)) },
		set: func(gc *GlobalConfig, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s must be an integer: %w", name, err)
			}
			*field(gc) = n
			return nil
		},
	}
}

func boolKey(name, desc string, field func(*GlobalConfig) *bool) Key {
	return Key{
		Name:        name,
		Description: desc,
		get:         func(gc *GlobalConfig) string { return strconv.FormatBool(*field(gc)) },
		set: func(gc *GlobalConfig, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s must be true or false: %w", name, err)
			}
			*field(gc) = b
			return nil
		},
	}
}

func durationKey(name, desc string, field func(*GlobalConfig) *Duration) Key {
	return Key{
		Name:        name,
		Description: desc,
		get:         func(gc *GlobalConfig) string { return field(gc).String() },
		set: func(gc *GlobalConfig, v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s must be a duration such as 1h30m: %w", name, err)
			}
			*field(gc) = Duration(d)
			return nil
		},
	}
}

var keys = []Key{
	intKey("workers", "Native targets packed concurrently", func(gc *GlobalConfig) *int { return &gc.Workers }),
	stringKey("temp_dir", "Root for per-pack temp dirs", func(gc *GlobalConfig) *string { return &gc.TempDir }),
	stringKey("cache_dir", "Registry fetch cache directory", func(gc *GlobalConfig) *string { return &gc.CacheDir }),
	stringKey("next_project_path", "Path to the framework checkout", func(gc *GlobalConfig) *string { return &gc.NextProjectPath }),
	stringKey("storage.endpoint", "S3 compatible endpoint (host[:port])", func(gc *GlobalConfig) *string { return &gc.Storage.Endpoint }),
	stringKey("storage.region", "Bucket region", func(gc *GlobalConfig) *string { return &gc.Storage.Region }),
	stringKey("storage.bucket", "Bucket artifacts are uploaded to", func(gc *GlobalConfig) *string { return &gc.Storage.Bucket }),
	valueKey("storage.access_key", "Access key", false, func(gc *GlobalConfig) *Value { return &gc.Storage.AccessKey }),
	valueKey("storage.secret_key", "Secret key", true, func(gc *GlobalConfig) *Value { return &gc.Storage.SecretKey }),
	boolKey("storage.use_ssl", "Connect to the endpoint over TLS", func(gc *GlobalConfig) *bool { return &gc.Storage.UseSSL }),
	durationKey("storage.presign_ttl", "Lifetime of download URLs", func(gc *GlobalConfig) *Duration { return &gc.Storage.PresignTTL }),
	stringKey("registry.url", "Package registry", func(gc *GlobalConfig) *string { return &gc.Registry.URL }),
	stringKey("registry.fallback_url", "Fallback package CDN", func(gc *GlobalConfig) *string { return &gc.Registry.FallbackURL }),
	stringKey("registry.canary_tag", "Dist tag used when a version is unpublished", func(gc *GlobalConfig) *string { return &gc.Registry.CanaryTag }),
	durationKey("registry.timeout", "Registry request timeout", func(gc *GlobalConfig) *Duration { return &gc.Registry.Timeout }),
	stringKey("upload.retry", "Upload retry policy (prompt, auto, never)", func(gc *GlobalConfig) *string { return &gc.Upload.Retry }),
	intKey("upload.max_attempts", "Upload attempts before giving up", func(gc *GlobalConfig) *int { return &gc.Upload.MaxAttempts }),
	durationKey("upload.backoff", "Delay between automatic retries", func(gc *GlobalConfig) *Duration { return &gc.Upload.Backoff }),
	stringKey("digest.algorithm", "Content digest (md5, blake3)", func(gc *GlobalConfig) *string { return &gc.Digest.Algorithm }),
	durationKey("fetch_cache.ttl", "Registry fetch cache lifetime", func(gc *GlobalConfig) *Duration { return &gc.FetchCache.TTL }),
	stringKey("logging.level", "Log level", func(gc *GlobalConfig) *string { return &gc.Logging.Level }),
	stringKey("logging.file", "Log file", func(gc *GlobalConfig) *string { return &gc.Logging.File }),
}

// Keys lists the settable keys in display order.
func Keys() []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

func LookupKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("%w %q (known keys: %s)", ErrUnknownKey, name, strings.Join(keyNames(), ", "))
}

func keyNames() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	sort.Strings(names)
	return names
}

// Get returns the display form of key. Secrets are masked.
func (gc *GlobalConfig) Get(name string) (string, error) {
	k, err := LookupKey(name)
	if err != nil {
		return "", err
	}
	return k.get(gc), nil
}

// Set assigns key and re-validates the whole configuration. On failure the
// configuration is left unchanged.
func (gc *GlobalConfig) Set(name, value string) error {
	k, err := LookupKey(name)
	if err != nil {
		return err
	}
	next := *gc
	if err := k.set(&next, value); err != nil {
		return err
	}
	if err := next.validateSchema(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*gc = next
	return nil
}
