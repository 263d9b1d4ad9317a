// Package cache removes what pack runs leave behind: expired bucket objects,
// the registry fetch cache, and abandoned temp directories.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/archive"
	"github.com/wyattjoh/next-dev-utils/internal/objectstore"
	fileutil "github.com/wyattjoh/next-dev-utils/internal/utils/file"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// DefaultMaxAge matches the lifetime of a presigned download URL.
const DefaultMaxAge = 24 * time.Hour

// CleanOptions defines what should be removed.
type CleanOptions struct {
	CleanBucket     bool          // remove bucket objects older than MaxAge
	CleanFetchCache bool          // remove cached registry documents under FetchCacheDir
	CleanTemp       bool          // remove stale pack temp directories under TempRoot
	MaxAge          time.Duration // zero means DefaultMaxAge
	DryRun          bool          // report actions without deleting anything

	Store         objectstore.Store
	FetchCacheDir string
	TempRoot      string
}

// CleanResult contains the outcome of a cleanup run.
type CleanResult struct {
	RemovedPaths   []string
	SkippedPaths   []string
	RemovedObjects []string
	FailedObjects  []string
}

// Clean removes artifacts according to the provided options. Individual
// object removal failures are reported in FailedObjects rather than
// aborting the run.
func Clean(ctx context.Context, opts CleanOptions) (*CleanResult, error) {
	return clean(ctx, opts, time.Now())
}

func clean(ctx context.Context, opts CleanOptions, now time.Time) (*CleanResult, error) {
	if !opts.CleanBucket && !opts.CleanFetchCache && !opts.CleanTemp {
		return nil, fmt.Errorf("at least one scope must be specified")
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	cutoff := now.Add(-opts.MaxAge)
	result := &CleanResult{}

	if opts.CleanBucket {
		if err := cleanBucket(ctx, opts, cutoff, result); err != nil {
			return nil, err
		}
	}

	var targets []string
	if opts.CleanFetchCache {
		found, err := fetchCacheTargets(opts.FetchCacheDir)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 && opts.FetchCacheDir != "" {
			result.SkippedPaths = append(result.SkippedPaths, opts.FetchCacheDir)
		}
		targets = append(targets, found...)
	}
	if opts.CleanTemp {
		found, err := tempTargets(opts.TempRoot, cutoff)
		if err != nil {
			return nil, err
		}
		targets = append(targets, found...)
	}

	for _, target := range targets {
		if opts.DryRun {
			result.RemovedPaths = append(result.RemovedPaths, target)
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing %s: %w", target, err)
		}
		result.RemovedPaths = append(result.RemovedPaths, target)
	}

	sort.Strings(result.RemovedPaths)
	sort.Strings(result.SkippedPaths)
	return result, nil
}

func cleanBucket(ctx context.Context, opts CleanOptions, cutoff time.Time, result *CleanResult) error {
	log := logger.Logger()

	if opts.Store == nil {
		return fmt.Errorf("bucket cleanup requires a configured object store")
	}
	exists, err := opts.Store.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", opts.Store.Bucket(), err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", opts.Store.Bucket())
	}

	objects, err := opts.Store.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing bucket %s: %w", opts.Store.Bucket(), err)
	}
	log.Debugf("Found %d objects in %s", len(objects), opts.Store.Bucket())

	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if opts.DryRun {
			result.RemovedObjects = append(result.RemovedObjects, obj.Key)
			continue
		}
		if err := opts.Store.Remove(ctx, obj.Key); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("Failed to delete %s: %v", obj.Key, err)
			result.FailedObjects = append(result.FailedObjects, obj.Key)
			continue
		}
		log.Debugf("Deleted %s", obj.Key)
		result.RemovedObjects = append(result.RemovedObjects, obj.Key)
	}
	return nil
}

func fetchCacheTargets(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("fetch cache directory is not set")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing fetch cache directory: %w", err)
	}

	var targets []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		target := filepath.Join(dir, entry.Name())
		if err := ensureSubPath(dir, target); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// tempTargets finds pack temp directories not modified since cutoff. A
// directory in use by a running pack is younger than any sensible cutoff.
func tempTargets(root string, cutoff time.Time) ([]string, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing temp directory: %w", err)
	}

	var targets []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), archive.TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		target := filepath.Join(root, entry.Name())
		if err := ensureSubPath(root, target); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func ensureSubPath(base, target string) error {
	ok, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refusing to operate on %s because it is outside %s", target, base)
	}
	return nil
}
