// Package distribute packs a whole framework checkout: every native target,
// then the main package with its optional dependencies pointed at the
// freshly delivered native packages.
package distribute

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/multitarget"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
	"github.com/wyattjoh/next-dev-utils/internal/project"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/shell"
)

// Packer packs a single directory.
type Packer interface {
	PackArtifact(ctx context.Context, opts pack.Options) (*pack.Result, error)
}

// TargetPackager packs native targets.
type TargetPackager interface {
	PackageAll(ctx context.Context, targets []multitarget.Target, opts multitarget.Options) (*multitarget.Result, error)
}

// BaselineSource provides the published metadata the main package is
// merged over.
type BaselineSource interface {
	Baseline(ctx context.Context, name, version string) (*pkgmeta.Metadata, error)
}

type Options struct {
	// ProjectPath is the configured checkout; Cwd picks a worktree of it.
	ProjectPath string
	Cwd         string
	Mode        pack.Mode
	Verbose     bool
	Progress    bool
	Platforms   []string
	// Install runs "pnpm add <url>" in Cwd after packing.
	Install bool
}

type Result struct {
	Root    string
	Main    *pack.Result
	Targets *multitarget.Result
	// BaselineVersion is the registry document version merged over, empty
	// when the local metadata was used.
	BaselineVersion string
}

func (r *Result) URL() string {
	if r == nil || r.Main == nil {
		return ""
	}
	return r.Main.URL
}

type Coordinator struct {
	Pipeline Packer
	Targets  TargetPackager
	Registry BaselineSource

	// Overridable for tests.
	ResolveRoot func(ctx context.Context, base, cwd string) (string, error)
	Discover    func(layout multitarget.Layout) ([]multitarget.Target, error)
	Executor    shell.Executor
}

// PackProject returns the URL of the main package.
func (c *Coordinator) PackProject(ctx context.Context, opts Options) (string, error) {
	res, err := c.Pack(ctx, opts)
	if err != nil {
		return "", err
	}
	return res.URL(), nil
}

func (c *Coordinator) Pack(ctx context.Context, opts Options) (*Result, error) {
	log := logger.Logger()

	resolve := c.ResolveRoot
	if resolve == nil {
		resolve = project.ResolveRoot
	}
	discover := c.Discover
	if discover == nil {
		discover = multitarget.Discover
	}

	root, err := resolve(ctx, opts.ProjectPath, opts.Cwd)
	if err != nil {
		return nil, fault.NewFatal(err)
	}
	layout := multitarget.Layout{Root: root}
	mainDir := layout.MainPackageDir()

	local, err := pkgmeta.Read(mainDir)
	if err != nil {
		return nil, fault.NewFatal(err)
	}
	version := local.Version()
	log.Infof("Packing %s@%s from %s", local.Name(), version, root)

	targets, err := discover(layout)
	if err != nil {
		return nil, fault.NewFatal(err)
	}
	tres, err := c.Targets.PackageAll(ctx, targets, multitarget.Options{
		Version:  version,
		Filter:   opts.Platforms,
		Mode:     opts.Mode,
		Verbose:  opts.Verbose,
		Progress: opts.Progress,
	})
	if err != nil {
		return &Result{Root: root, Targets: tres}, err
	}

	res := &Result{Root: root, Targets: tres}

	var remote *pkgmeta.Metadata
	if opts.Mode == pack.ModeDryRun {
		log.Infof("Dry run: using local %s metadata as the baseline", local.Name())
	} else {
		remote, err = c.Registry.Baseline(ctx, local.Name(), version)
		if err != nil {
			return res, err
		}
		res.BaselineVersion = remote.Version()
	}

	main, err := c.packMain(ctx, mainDir, version, remote, tres.URLs, opts)
	res.Main = main
	if err != nil {
		return res, err
	}

	if opts.Install && opts.Mode != pack.ModeDryRun {
		if err := c.install(ctx, main.URL, opts); err != nil {
			return res, err
		}
	}
	return res, nil
}

// packMain rewrites the main package metadata, packs it, and restores the
// original metadata. A restoration failure is fatal even if the pack worked.
func (c *Coordinator) packMain(ctx context.Context, dir, version string, remote *pkgmeta.Metadata, urls map[string]string, opts Options) (res *pack.Result, err error) {
	log := logger.Logger()

	mut, err := pkgmeta.Acquire(dir)
	if err != nil {
		return nil, fault.NewFatal(err)
	}
	defer func() {
		if rerr := mut.Release(); rerr != nil {
			res = nil
			err = fault.NewFatal(errors.Join(err, rerr))
		}
	}()

	meta := mut.Original()
	if remote != nil {
		if remote.Version() != version {
			log.Warnf("Using remote package.json for %s, local version %s doesn't exist. Local edits to package.json will be ignored.",
				remote.Version(), version)
			meta = remote.Clone()
		} else {
			deps, err := remote.OptionalDependencies()
			if err != nil {
				return nil, err
			}
			if err := meta.MergeOptionalDependencies(deps); err != nil {
				return nil, err
			}
		}
	}
	if err := meta.MergeOptionalDependencies(urls); err != nil {
		return nil, err
	}
	if err := mut.Write(meta); err != nil {
		return nil, err
	}
	log.Debugf("Merged %d native package URLs into %s", len(urls), meta.Name())

	res, err = c.Pipeline.PackArtifact(ctx, pack.Options{
		Dir:      dir,
		Mode:     opts.Mode,
		Verbose:  opts.Verbose,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", meta.Name(), err)
	}
	return res, nil
}

func (c *Coordinator) install(ctx context.Context, url string, opts Options) error {
	exec := c.Executor
	if exec == nil {
		exec = shell.Default
	}
	logger.Logger().Infof("Installing %s in %s", url, opts.Cwd)
	_, err := exec.Exec(ctx, shell.Command{
		Name:    "pnpm",
		Args:    []string{"add", url},
		Dir:     opts.Cwd,
		Stream:  true,
		Verbose: opts.Verbose,
	})
	if err != nil {
		return fmt.Errorf("installing packed framework: %w", err)
	}
	return nil
}
