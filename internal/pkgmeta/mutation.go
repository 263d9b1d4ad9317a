package pkgmeta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/utils/file"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
)

// Mutation is a scoped edit of one package directory. It captures the
// original package.json bytes on Acquire and puts them back on Release,
// along with removing any files staged into the directory in between.
// Callers defer Release immediately after a successful Acquire.
type Mutation struct {
	dir      string
	path     string
	original []byte
	mode     os.FileMode
	meta     *Metadata

	mu       sync.Mutex
	staged   []string
	dirty    bool
	released bool
}

// Read parses the package.json in dir without taking a mutation handle.
func Read(dir string) (*Metadata, error) {
	data, err := security.SafeReadFile(filepath.Join(dir, FileName), security.ResolveSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading package metadata in %s: %w", dir, err)
	}
	return Parse(data)
}

// Acquire snapshots the package.json in dir.
func Acquire(dir string) (*Mutation, error) {
	path := filepath.Join(dir, FileName)
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading package metadata in %s: %w", dir, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading package metadata in %s: %w", dir, err)
	}
	meta, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Mutation{dir: dir, path: path, original: data, mode: info.Mode().Perm(), meta: meta}, nil
}

func (m *Mutation) Dir() string { return m.dir }

// Original returns a copy of the metadata as it was at Acquire time.
func (m *Mutation) Original() *Metadata { return m.meta.Clone() }

// Write replaces the package.json with meta.
func (m *Mutation) Write(meta *Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return fmt.Errorf("package metadata in %s already released", m.dir)
	}

	data, err := meta.Encode()
	if err != nil {
		return err
	}
	m.dirty = true
	if err := security.SafeWriteFile(m.path, data, m.mode, security.ResolveSymlinks); err != nil {
		return fmt.Errorf("writing package metadata in %s: %w", m.dir, err)
	}
	return nil
}

// Stage copies src into the package directory as name. The copy is removed
// on Release. Staging over an existing file is refused so Release never
// deletes something it did not create.
func (m *Mutation) Stage(src, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return "", fmt.Errorf("package metadata in %s already released", m.dir)
	}

	dst := filepath.Join(m.dir, name)
	if ok, err := file.IsSubPath(m.dir, dst); err != nil || !ok {
		return "", fmt.Errorf("staged file %q escapes %s", name, m.dir)
	}
	exists, err := file.Exists(dst)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("refusing to stage over existing file %s", dst)
	}
	m.staged = append(m.staged, dst)
	if err := file.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("staging %s: %w", name, err)
	}
	return dst, nil
}

// Release restores the original package.json bytes and removes staged
// files. It is safe to call more than once; only the first call does work.
// A failure here means the working tree is left modified, so the error is
// always fatal.
func (m *Mutation) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil
	}
	m.released = true

	var errs []error
	if m.dirty {
		if err := m.restore(); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", m.path, err))
		}
	}
	for _, p := range m.staged {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing staged file %s: %w", p, err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Logger().Errorf("Failed to restore package %s: %v", m.dir, err)
		return fault.NewFatal(err)
	}
	logger.Logger().Debugf("Restored package metadata in %s", m.dir)
	return nil
}

// restore writes the original bytes back and resets the original mode, in
// case the file was replaced while the mutation was held.
func (m *Mutation) restore() error {
	if err := security.SafeWriteFile(m.path, m.original, m.mode, security.ResolveSymlinks); err != nil {
		return err
	}
	return os.Chmod(m.path, m.mode)
}
