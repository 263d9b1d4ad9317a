// Package archive turns a package directory into a tarball using the
// package manager's pack command.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/shell"
)

// TempPrefix names every temp directory created for a pack run, so cleanup
// can find stale ones.
const TempPrefix = "next-dev-utils-"

var (
	ErrPrivatePackage  = errors.New("private packages cannot be packed")
	ErrArchiveNotFound = errors.New("packed archive not found")
)

// Artifact is one packed tarball. It is never modified after Archive
// returns.
type Artifact struct {
	Name     string
	Version  string
	Filename string
	// Path is the absolute path of the tarball; Dir is its temp directory.
	Path string
	Dir  string
}

// Key is the object store key for the artifact.
func (a *Artifact) Key() string { return a.Filename }

// Size returns the tarball size in bytes.
func (a *Artifact) Size() (int64, error) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Filename returns the tarball name the package manager produces for a
// package: the scope's leading "@" is dropped and "/" becomes "-".
func Filename(name, version string) string {
	normalized := strings.Replace(strings.TrimPrefix(name, "@"), "/", "-", 1)
	return fmt.Sprintf("%s-%s.tgz", normalized, version)
}

// Archiver runs "<PackageManager> pack" for a directory.
type Archiver struct {
	// TempRoot holds the per-run temp directories; empty means os.TempDir.
	TempRoot       string
	PackageManager string
	// Executor defaults to shell.Default.
	Executor shell.Executor
}

func New(tempRoot string) *Archiver {
	return &Archiver{TempRoot: tempRoot, PackageManager: "pnpm"}
}

func (a *Archiver) executor() shell.Executor {
	if a.Executor != nil {
		return a.Executor
	}
	return shell.Default
}

// Archive packs dir into a fresh temp directory and returns the resulting
// artifact. Cancelling ctx kills the package manager.
func (a *Archiver) Archive(ctx context.Context, dir string, verbose bool) (*Artifact, error) {
	log := logger.Logger()

	meta, err := pkgmeta.Read(dir)
	if err != nil {
		return nil, err
	}
	if meta.Private() {
		return nil, fault.NewFatal(fmt.Errorf("%w: %s", ErrPrivatePackage, meta.Name()))
	}
	if meta.Name() == "" || meta.Version() == "" {
		return nil, fault.Fatalf("package in %s is missing a name or version", dir)
	}

	root := a.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp root %s: %w", root, err)
	}
	tmp, err := os.MkdirTemp(root, TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	// pnpm prints the resolved path; compare against the same form.
	if resolved, err := filepath.EvalSymlinks(tmp); err == nil {
		tmp = resolved
	}

	filename := Filename(meta.Name(), meta.Version())
	expected := filepath.Join(tmp, filename)

	pm := a.PackageManager
	if pm == "" {
		pm = "pnpm"
	}
	log.Debugf("Packing %s@%s from %s", meta.Name(), meta.Version(), dir)
	output, err := a.executor().Exec(ctx, shell.Command{
		Name:    pm,
		Args:    []string{"pack", "--pack-destination", tmp},
		Dir:     dir,
		Stream:  true,
		Verbose: verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", meta.Name(), err)
	}

	if !containsLine(output, expected) {
		return nil, fmt.Errorf("%w: %s not reported by %s pack", ErrArchiveNotFound, expected, pm)
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", tmp, err)
	}
	found := false
	for _, e := range entries {
		if e.Name() == filename && e.Type().IsRegular() {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s does not exist", ErrArchiveNotFound, expected)
	}

	return &Artifact{
		Name:     meta.Name(),
		Version:  meta.Version(),
		Filename: filename,
		Path:     expected,
		Dir:      tmp,
	}, nil
}

func containsLine(output, want string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
