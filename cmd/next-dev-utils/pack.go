package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
)

// packFlags are shared by pack and pack-next.
type packFlags struct {
	json     bool
	serve    bool
	progress bool
	dryRun   bool
	manifest string
}

func (f *packFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "Serve the archive from this machine instead of uploading it")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Show progress")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Pack without uploading or serving")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "Write a JSON artifact manifest to this file")
}

func (f *packFlags) mode() (pack.Mode, error) {
	if f.json && f.serve {
		return 0, fmt.Errorf("cannot use --json and --serve together")
	}
	return modeFromFlags(f.serve, f.dryRun)
}

func createPackCommand() *cobra.Command {
	var flags packFlags

	packCmd := &cobra.Command{
		Use:   "pack [DIR]",
		Short: "Pack a package and share it by URL",
		Long: `Pack the package in DIR (default: the current directory) with the
package manager, then upload the archive and print a download URL.

With --serve the archive is served from this machine until interrupted.
With --dry-run nothing leaves the machine and a placeholder URL is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePack(cmd, args, &flags)
		},
	}
	flags.register(packCmd)

	return packCmd
}

func executePack(cmd *cobra.Command, args []string, flags *packFlags) error {
	mode, err := flags.mode()
	if err != nil {
		return err
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}

	ctx := cmd.Context()
	pipeline, err := newPipeline(ctx, mode, progressWriter(cmd, flags.progress))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	res, err := pipeline.PackArtifact(ctx, pack.Options{
		Dir:      dir,
		Mode:     mode,
		Verbose:  verbose,
		Progress: flags.progress,
	})
	if err != nil {
		return err
	}

	if err := writeManifest(flags.manifest, mode, res, nil); err != nil {
		return err
	}
	if err := emitURL(cmd.OutOrStdout(), res.URL, flags.json); err != nil {
		return err
	}

	if mode == pack.ModeServe {
		fmt.Fprintln(cmd.ErrOrStderr(), "Serving, press Ctrl+C to stop")
		pipeline.Wait()
	}
	return nil
}
