package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
)

var ErrArchiveMismatch = errors.New("archive contents do not match package")

// manifestEntry is where npm-style tarballs keep the package metadata.
const manifestEntry = "package/" + pkgmeta.FileName

// Verify checks that the tarball at path carries package metadata for
// name@version.
func Verify(path, name, version string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip stream of %s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s has no %s", ErrArchiveMismatch, path, manifestEntry)
		}
		if err != nil {
			return fmt.Errorf("reading tar entries of %s: %w", path, err)
		}
		if hdr.Name != manifestEntry {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, 16<<20))
		if err != nil {
			return fmt.Errorf("reading %s: %w", manifestEntry, err)
		}
		meta, err := pkgmeta.Parse(data)
		if err != nil {
			return err
		}
		if meta.Name() != name || meta.Version() != version {
			return fmt.Errorf("%w: got %s@%s, want %s@%s",
				ErrArchiveMismatch, meta.Name(), meta.Version(), name, version)
		}
		return nil
	}
}
