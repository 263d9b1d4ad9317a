package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/archive"
	"github.com/wyattjoh/next-dev-utils/internal/config"
	"github.com/wyattjoh/next-dev-utils/internal/digest"
	"github.com/wyattjoh/next-dev-utils/internal/objectstore"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/prompt"
	"github.com/wyattjoh/next-dev-utils/internal/registry"
	"github.com/wyattjoh/next-dev-utils/internal/utils/file"
)

const (
	skipCacheEnv  = "NEXT_DEV_UTILS_SKIP_CACHE"
	forceCacheEnv = "NEXT_DEV_UTILS_FORCE_CACHE"
)

// Replaced in tests.
var (
	newTerminal = func() *prompt.Terminal { return prompt.NewTerminal() }
	openStore   = openConfiguredStore
	newResolver = func() config.Resolver { return config.OnePasswordResolver{} }
)

// storageSetting is a storage key requested interactively when missing.
type storageSetting struct {
	key    string
	label  string
	secret bool
	empty  func(config.StorageConfig) bool
}

var storageSettings = []storageSetting{
	{"storage.endpoint", "S3 endpoint (host[:port])", false, func(s config.StorageConfig) bool { return s.Endpoint == "" }},
	{"storage.bucket", "Bucket", false, func(s config.StorageConfig) bool { return s.Bucket == "" }},
	{"storage.access_key", "Access key", false, func(s config.StorageConfig) bool { return s.AccessKey.IsZero() }},
	{"storage.secret_key", "Secret key (or op:// reference)", true, func(s config.StorageConfig) bool { return s.SecretKey.IsZero() }},
}

// openConfiguredStore builds the object store from configuration. Missing
// settings are asked for on a terminal and saved.
func openConfiguredStore(ctx context.Context) (objectstore.Store, error) {
	gc := config.Global()
	if !gc.Storage.Configured() {
		if err := promptMissing(gc, storageSettings); err != nil {
			return nil, err
		}
	}

	resolver := newResolver()
	access, err := resolver.Resolve(ctx, gc.Storage.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("resolving storage.access_key: %w", err)
	}
	secret, err := resolver.Resolve(ctx, gc.Storage.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("resolving storage.secret_key: %w", err)
	}

	return objectstore.NewMinioStore(objectstore.Config{
		Endpoint:  gc.Storage.Endpoint,
		Region:    gc.Storage.Region,
		AccessKey: access,
		SecretKey: secret,
		Bucket:    gc.Storage.Bucket,
		UseSSL:    gc.Storage.UseSSL,
	})
}

// promptMissing asks for each empty setting and saves the result to the
// active config file.
func promptMissing(gc *config.GlobalConfig, settings []storageSetting) error {
	term := newTerminal()
	if !term.Interactive() {
		return fmt.Errorf("%w: set storage.endpoint, storage.bucket, storage.access_key and storage.secret_key with 'next-dev-utils config set'",
			pack.ErrStoreNotConfigured)
	}

	for _, s := range settings {
		if !s.empty(gc.Storage) {
			continue
		}
		var (
			value string
			err   error
		)
		if s.secret {
			value, err = term.ReadSecret(s.label)
		} else {
			value, err = term.ReadLine(s.label)
		}
		if err != nil {
			return err
		}
		if err := gc.Set(s.key, value); err != nil {
			return err
		}
	}
	return saveConfig(gc)
}

func saveConfig(gc *config.GlobalConfig) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := gc.SaveGlobalConfig(path); err != nil {
		return err
	}
	configPath = path
	logr().Infof("Saved configuration to %s", path)
	return nil
}

// requireProjectPath returns the framework checkout, asking for it on a
// terminal when unset.
func requireProjectPath() (string, error) {
	if p := config.ProjectPath(); p != "" {
		return p, nil
	}

	term := newTerminal()
	if !term.Interactive() {
		return "", fmt.Errorf("next_project_path is not set: run 'next-dev-utils config set next_project_path <path>' or set %s", config.ProjectPathEnv)
	}
	p, err := term.ReadLine("Path to your Next.js checkout")
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + p[1:]
		}
	}
	ok, err := file.Exists(p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("next_project_path %s does not exist", p)
	}

	gc := config.Global()
	if err := gc.Set("next_project_path", p); err != nil {
		return "", err
	}
	if err := saveConfig(gc); err != nil {
		return "", err
	}
	return p, nil
}

// newPipeline wires an artifact pipeline for mode. Only upload mode needs
// the object store.
func newPipeline(ctx context.Context, mode pack.Mode, progressOut io.Writer) (*pack.Pipeline, error) {
	gc := config.Global()

	hasher, err := digest.New(gc.Digest.Algorithm)
	if err != nil {
		return nil, err
	}
	retryMode, err := pack.ParseRetryMode(gc.Upload.Retry)
	if err != nil {
		return nil, err
	}

	var store objectstore.Store
	if mode == pack.ModeUpload {
		if store, err = openStore(ctx); err != nil {
			return nil, err
		}
	}

	term := newTerminal()
	term.DefaultYes = true

	return pack.New(pack.Config{
		Archiver:  archive.New(config.TempDir()),
		Hasher:    hasher,
		Store:     store,
		Confirmer: term,
		Retry: pack.RetryPolicy{
			Mode:        retryMode,
			MaxAttempts: gc.Upload.MaxAttempts,
			Backoff:     gc.Upload.Backoff.Std(),
		},
		PresignTTL:  gc.Storage.PresignTTL.Std(),
		ProgressOut: progressOut,
	}), nil
}

// newRegistryClient fetches through the on-disk cache.
func newRegistryClient() (*registry.Client, error) {
	gc := config.Global()
	dir, err := config.CacheDir()
	if err != nil {
		return nil, err
	}
	cache := registry.NewCache(cachePolicyFromEnv(gc.FetchCache.TTL.Std()), dir,
		registry.NewHTTPFetcher(gc.Registry.Timeout.Std()))
	return registry.NewClient(registry.Config{
		URL:         gc.Registry.URL,
		FallbackURL: gc.Registry.FallbackURL,
		CanaryTag:   gc.Registry.CanaryTag,
	}, cache), nil
}

func cachePolicyFromEnv(ttl time.Duration) registry.CachePolicy {
	return registry.CachePolicy{
		SkipCache:  envBool(skipCacheEnv),
		ForceCache: envBool(forceCacheEnv),
		TTL:        ttl,
	}
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && v
}

func modeFromFlags(serve, dryRun bool) (pack.Mode, error) {
	switch {
	case serve && dryRun:
		return 0, fmt.Errorf("cannot use --serve and --dry-run together")
	case serve:
		return pack.ModeServe, nil
	case dryRun:
		return pack.ModeDryRun, nil
	default:
		return pack.ModeUpload, nil
	}
}

func progressWriter(cmd *cobra.Command, enabled bool) io.Writer {
	if !enabled {
		return nil
	}
	return cmd.ErrOrStderr()
}
