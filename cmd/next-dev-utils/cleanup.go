package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/cache"
	"github.com/wyattjoh/next-dev-utils/internal/config"
)

func createCleanupCommand() *cobra.Command {
	var opts cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired uploads and local leftovers",
		Long: `Remove bucket objects older than --max-age, the registry fetch cache, and
temp directories left behind by interrupted packs.

By default every scope is cleaned. Use flags to restrict cleanup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("bucket") && !cmd.Flags().Changed("cache") && !cmd.Flags().Changed("temp") {
				opts.CleanBucket = true
				opts.CleanFetchCache = true
				opts.CleanTemp = true
				if !config.Global().Storage.Configured() {
					logr().Warn("Storage is not configured, skipping bucket cleanup")
					opts.CleanBucket = false
				}
			}

			ctx := cmd.Context()
			if opts.CleanBucket {
				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				opts.Store = store
			}
			if opts.CleanFetchCache {
				dir, err := config.CacheDir()
				if err != nil {
					return err
				}
				opts.FetchCacheDir = dir
			}
			opts.TempRoot = config.TempDir()

			result, err := cache.Clean(ctx, opts)
			if err != nil {
				return err
			}

			writer := cmd.OutOrStdout()
			if opts.DryRun {
				fmt.Fprintln(writer, "Dry run: nothing was deleted.")
			}
			verb := "Deleted"
			if opts.DryRun {
				verb = "Would delete"
			}
			if opts.CleanBucket {
				fmt.Fprintf(writer, "%s %d object(s) from %s", verb, len(result.RemovedObjects), opts.Store.Bucket())
				if len(result.FailedObjects) > 0 {
					fmt.Fprintf(writer, ", %d failed", len(result.FailedObjects))
				}
				fmt.Fprintln(writer)
				for _, key := range result.RemovedObjects {
					fmt.Fprintf(writer, "  %s\n", key)
				}
			}
			if len(result.RemovedPaths) > 0 {
				fmt.Fprintf(writer, "%s:\n", verb)
				for _, p := range result.RemovedPaths {
					fmt.Fprintf(writer, "  %s\n", p)
				}
			}
			if len(result.FailedObjects) > 0 {
				return fmt.Errorf("failed to delete %d object(s)", len(result.FailedObjects))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.CleanBucket, "bucket", false, "Remove bucket objects older than --max-age")
	cmd.Flags().BoolVar(&opts.CleanFetchCache, "cache", false, "Remove the registry fetch cache")
	cmd.Flags().BoolVar(&opts.CleanTemp, "temp", false, "Remove stale pack temp directories")
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 24*time.Hour, "Minimum age of removed objects and temp directories")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}
