package multitarget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
	"github.com/wyattjoh/next-dev-utils/internal/progress"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

var (
	ErrNoTargets          = errors.New("no native targets found; build the native binaries first")
	ErrFilterMatchedNone  = errors.New("platform filter matched no native targets")
	ErrAllTargetsFailed   = errors.New("every native target failed to pack")
	ErrRestorationFailure = errors.New("failed to restore native package metadata")
)

// Packer is the slice of pack.Pipeline the packager needs.
type Packer interface {
	PackArtifact(ctx context.Context, opts pack.Options) (*pack.Result, error)
}

type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusDryRun
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TargetResult is the outcome for one target. Err is set only for
// StatusFailed; URL only otherwise.
type TargetResult struct {
	Target      Target
	PackageName string
	Status      Status
	URL         string
	Err         error
	Pack        *pack.Result

	restoreErr error
}

// Result aggregates a run. Every target passed in yields exactly one entry
// across Successful, Failed and DryRun.
type Result struct {
	// URLs maps package name to URL for succeeded and dry-run targets.
	URLs       map[string]string
	Successful []TargetResult
	Failed     []TargetResult
	DryRun     []TargetResult
	Total      int
}

func (r *Result) Summary() string {
	s := fmt.Sprintf("%d of %d native targets succeeded, %d failed", len(r.Successful), r.Total, len(r.Failed))
	if len(r.DryRun) > 0 {
		s += fmt.Sprintf(", %d dry-run", len(r.DryRun))
	}
	return s
}

type Options struct {
	Version  string
	Filter   []string
	Mode     pack.Mode
	Verbose  bool
	Progress bool
}

type Packager struct {
	Packer Packer
	// Workers bounds concurrent targets; zero runs all at once.
	Workers int
	// ProgressOut receives the aggregate bar when Options.Progress is set.
	ProgressOut io.Writer
}

// PackageAll packs the targets selected by opts.Filter. A failing target
// does not stop its siblings. The returned Result is non-nil whenever any
// target ran, even alongside an error.
func (p *Packager) PackageAll(ctx context.Context, targets []Target, opts Options) (*Result, error) {
	log := logger.Logger()

	if len(targets) == 0 {
		return nil, fault.NewFatal(ErrNoTargets)
	}
	selected := Filter(targets, opts.Filter)
	if len(selected) == 0 {
		return nil, fault.NewFatal(fmt.Errorf("%w: %s", ErrFilterMatchedNone, strings.Join(opts.Filter, ",")))
	}

	workers := p.Workers
	if workers <= 0 || workers > len(selected) {
		workers = len(selected)
	}
	log.Infof("Packing %d native targets (%d at a time)", len(selected), workers)

	var out io.Writer
	if opts.Progress {
		out = p.ProgressOut
	}
	tracker := progress.NewTracker(len(selected), "Native targets", out)

	results := make([]TargetResult, len(selected))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, t := range selected {
		i, t := i, t
		g.Go(func() error {
			results[i] = p.packageTarget(ctx, t, opts)
			tracker.Complete(t.Platform, results[i].Status != StatusFailed)
			return nil
		})
	}
	_ = g.Wait()
	tracker.Close()

	return aggregate(results)
}

func aggregate(results []TargetResult) (*Result, error) {
	log := logger.Logger()
	res := &Result{URLs: map[string]string{}, Total: len(results)}

	var restoreErrs []error
	for _, tr := range results {
		if tr.restoreErr != nil {
			restoreErrs = append(restoreErrs, fmt.Errorf("%s: %w", tr.Target.Platform, tr.restoreErr))
		}
		switch tr.Status {
		case StatusSucceeded:
			res.Successful = append(res.Successful, tr)
			res.URLs[tr.PackageName] = tr.URL
		case StatusDryRun:
			res.DryRun = append(res.DryRun, tr)
			res.URLs[tr.PackageName] = tr.URL
		default:
			res.Failed = append(res.Failed, tr)
			log.Errorf("Native target %s failed: %v", tr.Target.Platform, tr.Err)
		}
	}

	if len(restoreErrs) > 0 {
		return res, fault.NewFatal(fmt.Errorf("%w (%s): %w", ErrRestorationFailure, res.Summary(), errors.Join(restoreErrs...)))
	}
	if len(res.Failed) == res.Total {
		causes := make([]error, 0, len(res.Failed))
		for _, tr := range res.Failed {
			causes = append(causes, fmt.Errorf("%s: %w", tr.Target.Platform, tr.Err))
		}
		return res, fault.NewFatal(fmt.Errorf("%w (%s): %w", ErrAllTargetsFailed, res.Summary(), errors.Join(causes...)))
	}
	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for _, tr := range res.Failed {
			failed = append(failed, tr.Target.Platform)
		}
		log.Warnf("!!! %s. The packed framework will be missing: %s", res.Summary(), strings.Join(failed, ", "))
	} else {
		log.Infof("%s", res.Summary())
	}
	return res, nil
}

// packageTarget runs stage, pack and restore for one target. Restoration
// happens whatever the pack outcome.
func (p *Packager) packageTarget(ctx context.Context, t Target, opts Options) (tr TargetResult) {
	log := logger.With("platform", t.Platform)
	tr = TargetResult{Target: t, Status: StatusFailed}

	mut, err := pkgmeta.Acquire(t.MetadataDir)
	if err != nil {
		tr.Err = err
		return tr
	}
	defer func() {
		if rerr := mut.Release(); rerr != nil {
			tr.restoreErr = rerr
			tr.Status = StatusFailed
			tr.URL = ""
			tr.Err = errors.Join(tr.Err, rerr)
		}
	}()

	meta := mut.Original()
	tr.PackageName = meta.Name()
	if opts.Version != "" {
		if err := meta.SetVersion(opts.Version); err != nil {
			tr.Err = err
			return tr
		}
	}
	if err := mut.Write(meta); err != nil {
		tr.Err = err
		return tr
	}
	log.Debugf("Staged metadata for %s@%s", meta.Name(), meta.Version())

	if _, err := mut.Stage(t.BinaryPath, filepath.Base(t.BinaryPath)); err != nil {
		tr.Err = err
		return tr
	}

	res, err := p.Packer.PackArtifact(ctx, pack.Options{
		Dir:     t.MetadataDir,
		Mode:    opts.Mode,
		Verbose: opts.Verbose,
	})
	if err != nil {
		tr.Err = err
		return tr
	}

	tr.Pack = res
	tr.URL = res.URL
	tr.Status = StatusSucceeded
	if opts.Mode == pack.ModeDryRun {
		tr.Status = StatusDryRun
	}
	log.Debugf("Packed %s: %s", tr.PackageName, tr.URL)
	return tr
}
