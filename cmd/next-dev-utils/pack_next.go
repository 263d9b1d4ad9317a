package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/config"
	"github.com/wyattjoh/next-dev-utils/internal/distribute"
	"github.com/wyattjoh/next-dev-utils/internal/multitarget"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
)

// Replaced in tests.
var newBaselineSource = func() (distribute.BaselineSource, error) { return newRegistryClient() }

func createPackNextCommand() *cobra.Command {
	var (
		flags     packFlags
		install   bool
		platforms string
	)

	packNextCmd := &cobra.Command{
		Use:   "pack-next",
		Short: "Pack Next.js with its native binaries",
		Long: `Pack every native binary package that has been built in the Next.js
checkout, then pack the next package with its optional dependencies pointed at
the freshly delivered native packages. Prints the URL of the next package.

The checkout is next_project_path (or NEXT_PROJECT_PATH). When the current
directory is inside one of its git worktrees, that worktree is packed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePackNext(cmd, &flags, install, platforms)
		},
	}
	flags.register(packNextCmd)
	packNextCmd.Flags().BoolVar(&install, "install", false, "Run 'pnpm add <url>' in the current directory afterwards")
	packNextCmd.Flags().StringVar(&platforms, "swc-platforms", "", "Comma separated native platforms to pack (default: all built)")

	return packNextCmd
}

func executePackNext(cmd *cobra.Command, flags *packFlags, install bool, platforms string) error {
	mode, err := flags.mode()
	if err != nil {
		return err
	}
	if install && flags.serve {
		return fmt.Errorf("cannot use --install and --serve together")
	}

	projectPath, err := requireProjectPath()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	progressOut := progressWriter(cmd, flags.progress)
	pipeline, err := newPipeline(ctx, mode, progressOut)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	var baseline distribute.BaselineSource
	if mode != pack.ModeDryRun {
		if baseline, err = newBaselineSource(); err != nil {
			return err
		}
	}

	coordinator := &distribute.Coordinator{
		Pipeline: pipeline,
		Targets: &multitarget.Packager{
			Packer:      pipeline,
			Workers:     config.Workers(),
			ProgressOut: progressOut,
		},
		Registry: baseline,
	}

	res, err := coordinator.Pack(ctx, distribute.Options{
		ProjectPath: projectPath,
		Cwd:         cwd,
		Mode:        mode,
		Verbose:     verbose,
		Progress:    flags.progress,
		Platforms:   multitarget.ParsePlatforms(platforms),
		Install:     install,
	})
	if res != nil {
		printTargetSummary(cmd.ErrOrStderr(), res.Targets)
	}
	if err != nil {
		return err
	}

	if err := writeManifest(flags.manifest, mode, res.Main, res.Targets); err != nil {
		return err
	}
	if err := emitURL(cmd.OutOrStdout(), res.URL(), flags.json); err != nil {
		return err
	}

	if mode == pack.ModeServe {
		fmt.Fprintln(cmd.ErrOrStderr(), "Serving, press Ctrl+C to stop")
		pipeline.Wait()
	}
	return nil
}
