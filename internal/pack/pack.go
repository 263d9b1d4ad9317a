// Package pack turns a package directory into a URL: it archives the
// directory, digests the tarball and delivers it by upload, local serving,
// or not at all (dry run).
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/archive"
	"github.com/wyattjoh/next-dev-utils/internal/digest"
	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/objectstore"
	"github.com/wyattjoh/next-dev-utils/internal/progress"
	"github.com/wyattjoh/next-dev-utils/internal/prompt"
	"github.com/wyattjoh/next-dev-utils/internal/serve"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// DryRunURL is returned instead of a real URL in dry-run mode.
const DryRunURL = "dry-run://not-uploaded"

var (
	ErrBucketNotFound     = errors.New("bucket does not exist")
	ErrStoreNotConfigured = errors.New("object storage is not configured")
	ErrUploadFailed       = errors.New("upload failed")
)

type Mode int

const (
	ModeUpload Mode = iota
	ModeServe
	ModeDryRun
)

func (m Mode) String() string {
	switch m {
	case ModeUpload:
		return "upload"
	case ModeServe:
		return "serve"
	case ModeDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// UploadDecision is the dedup verdict for one artifact.
type UploadDecision int

const (
	DecisionUpload UploadDecision = iota
	DecisionSkip
)

func (d UploadDecision) String() string {
	if d == DecisionSkip {
		return "skip"
	}
	return "upload"
}

// Decide skips the upload only when the store already holds the same
// content under the key.
func Decide(existing *objectstore.ObjectInfo, algorithm, sum string) UploadDecision {
	if existing.Matches(algorithm, sum) {
		return DecisionSkip
	}
	return DecisionUpload
}

// Archiver produces a tarball from a package directory.
type Archiver interface {
	Archive(ctx context.Context, dir string, verbose bool) (*archive.Artifact, error)
}

type Options struct {
	Dir     string
	Mode    Mode
	Verbose bool
	// Progress shows a spinner for this run.
	Progress bool
}

// Result describes one delivered artifact.
type Result struct {
	Artifact  *archive.Artifact
	Digest    string
	Algorithm string
	Size      int64
	URL       string
	Decision  UploadDecision
}

type Config struct {
	Archiver  Archiver
	Hasher    digest.Hasher
	Store     objectstore.Store
	Confirmer prompt.Confirmer
	Retry     RetryPolicy
	// PresignTTL defaults to 24h.
	PresignTTL time.Duration
	// ProgressOut receives spinner output; nil disables spinners.
	ProgressOut io.Writer
	SkipVerify  bool
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg Config

	mu      sync.Mutex
	servers []*serve.Server
}

func New(cfg Config) *Pipeline {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}
	if cfg.Retry.Mode == "" {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Pipeline{cfg: cfg}
}

// Pack delivers the package in opts.Dir and returns its URL.
func (p *Pipeline) Pack(ctx context.Context, opts Options) (string, error) {
	res, err := p.PackArtifact(ctx, opts)
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

func (p *Pipeline) PackArtifact(ctx context.Context, opts Options) (*Result, error) {
	log := logger.Logger()

	var step progress.Stepper = progress.Quiet{}
	if opts.Progress && p.cfg.ProgressOut != nil {
		sp := progress.NewSpinner(p.cfg.ProgressOut, "Packing "+filepath.Base(opts.Dir))
		defer sp.Done()
		step = sp
	}

	step.Step(fmt.Sprintf("Packing %s", opts.Dir))
	art, err := p.cfg.Archiver.Archive(ctx, opts.Dir, opts.Verbose)
	if err != nil {
		return nil, err
	}
	if !p.cfg.SkipVerify {
		if err := archive.Verify(art.Path, art.Name, art.Version); err != nil {
			return nil, err
		}
	}

	step.Step(fmt.Sprintf("Computing %s digest", p.cfg.Hasher.Algorithm()))
	sum, err := p.cfg.Hasher.Sum(art.Path)
	if err != nil {
		return nil, err
	}
	size, err := art.Size()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", art.Path, err)
	}
	log.Infof("Packed %s@%s: %s (%s %s)", art.Name, art.Version, art.Path, p.cfg.Hasher.Algorithm(), sum)

	res := &Result{
		Artifact:  art,
		Digest:    sum,
		Algorithm: p.cfg.Hasher.Algorithm(),
		Size:      size,
	}

	switch opts.Mode {
	case ModeDryRun:
		log.Infof("Dry run: would deliver %s (%d bytes)", art.Filename, size)
		res.URL = DryRunURL
		return res, nil

	case ModeServe:
		srv, err := serve.Start(ctx, art.Path, art.Filename, sum)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.servers = append(p.servers, srv)
		p.mu.Unlock()
		res.URL = srv.URL()
		log.Infof("Serving %s at %s", art.Filename, res.URL)
		return res, nil

	default:
		decision, url, err := p.upload(ctx, art, sum, step)
		if err != nil {
			return nil, err
		}
		res.Decision = decision
		res.URL = url
		return res, nil
	}
}

func (p *Pipeline) upload(ctx context.Context, art *archive.Artifact, sum string, step progress.Stepper) (UploadDecision, string, error) {
	log := logger.Logger()
	store := p.cfg.Store
	if store == nil {
		return DecisionUpload, "", fault.NewFatal(ErrStoreNotConfigured)
	}

	exists, err := store.BucketExists(ctx)
	if err != nil {
		return DecisionUpload, "", fmt.Errorf("checking bucket %q: %w", store.Bucket(), err)
	}
	if !exists {
		return DecisionUpload, "", fault.NewFatal(fmt.Errorf("%w: %q", ErrBucketNotFound, store.Bucket()))
	}

	key := art.Key()
	step.Step(fmt.Sprintf("Checking if %s already exists", key))
	existing, err := store.Stat(ctx, key)
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		log.Debugf("%s does not exist in bucket %s", key, store.Bucket())
	case err != nil:
		log.Warnf("Could not stat %s, uploading anyway: %v", key, err)
		existing = nil
	}

	decision := Decide(existing, p.cfg.Hasher.Algorithm(), sum)
	switch {
	case decision == DecisionSkip:
		log.Infof("%s already exists in storage with the same content", key)
	case existing != nil:
		log.Infof("%s exists in storage with differing content", key)
	}

	if decision == DecisionUpload {
		step.Step(fmt.Sprintf("Uploading %s", key))
		if err := p.putWithRetry(ctx, art, sum); err != nil {
			return decision, "", err
		}
		log.Infof("Uploaded %s to bucket %s", key, store.Bucket())
	}

	url, err := store.PresignedURL(ctx, key, p.cfg.PresignTTL)
	if err != nil {
		return decision, "", err
	}
	return decision, url, nil
}

// putWithRetry returns a fatal error once the retry policy gives up.
func (p *Pipeline) putWithRetry(ctx context.Context, art *archive.Artifact, sum string) error {
	log := logger.Logger()
	key := art.Key()
	opts := objectstore.PutOptions{Digest: sum, Algorithm: p.cfg.Hasher.Algorithm()}

	for attempt := 1; ; attempt++ {
		err := p.cfg.Store.Put(ctx, key, art.Path, opts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fault.NewFatal(fmt.Errorf("uploading %s: %w", key, ctx.Err()))
		}
		log.Errorf("Uploading %s failed: %v", key, err)

		retry, perr := p.cfg.Retry.shouldRetry(ctx, p.cfg.Confirmer, key, attempt)
		if perr != nil {
			return fault.NewFatal(fmt.Errorf("%w: %s: %w", ErrUploadFailed, key, errors.Join(err, perr)))
		}
		if !retry {
			return fault.NewFatal(fmt.Errorf("%w: %s after %d attempt(s): %w", ErrUploadFailed, key, attempt, err))
		}
	}
}

// Wait blocks until every server started in serve mode has stopped.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	servers := append([]*serve.Server(nil), p.servers...)
	p.mu.Unlock()
	for _, s := range servers {
		<-s.Done()
	}
}

// Close stops every server started in serve mode.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	servers := append([]*serve.Server(nil), p.servers...)
	p.mu.Unlock()
	var errs []error
	for _, s := range servers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
