// Package multitarget packs every native platform package of the framework
// concurrently, staging each platform's prebuilt binary into its package
// for the duration of the pack.
package multitarget

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
	"github.com/wyattjoh/next-dev-utils/internal/utils/file"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/slice"
)

// Layout locates packages inside a framework checkout.
type Layout struct {
	Root string
}

func (l Layout) NpmDir() string {
	return filepath.Join(l.Root, "packages", "next-swc", "crates", "napi", "npm")
}

func (l Layout) NativeDir() string {
	return filepath.Join(l.Root, "packages", "next-swc", "native")
}

func (l Layout) MainPackageDir() string {
	return filepath.Join(l.Root, "packages", "next")
}

// BinaryPath is where the build leaves the binary for platform.
func (l Layout) BinaryPath(platform string) string {
	return filepath.Join(l.NativeDir(), fmt.Sprintf("next-swc.%s.node", platform))
}

// Target is one native platform package.
type Target struct {
	Platform    string
	MetadataDir string
	BinaryPath  string
}

// Discover lists platform packages that have both metadata and a built
// binary. Platforms without a binary are skipped.
func Discover(layout Layout) ([]Target, error) {
	log := logger.Logger()

	entries, err := os.ReadDir(layout.NpmDir())
	if err != nil {
		return nil, fmt.Errorf("listing native packages in %s: %w", layout.NpmDir(), err)
	}

	var targets []Target
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		platform := e.Name()
		dir := filepath.Join(layout.NpmDir(), platform)
		if !file.IsReadableFile(filepath.Join(dir, pkgmeta.FileName)) {
			log.Debugf("Skipping %s: no %s", platform, pkgmeta.FileName)
			continue
		}
		bin := layout.BinaryPath(platform)
		if !file.IsReadableFile(bin) {
			log.Debugf("Skipping %s: binary %s not built", platform, bin)
			continue
		}
		targets = append(targets, Target{Platform: platform, MetadataDir: dir, BinaryPath: bin})
	}
	return targets, nil
}

// ParsePlatforms splits a comma separated platform list, dropping repeats.
func ParsePlatforms(s string) []string {
	out := slice.Dedupe(slice.SplitList(s, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}

// Filter keeps targets whose platform is listed. An empty list keeps all.
func Filter(targets []Target, platforms []string) []Target {
	if len(platforms) == 0 {
		return targets
	}
	want := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		want[p] = true
	}
	var out []Target
	for _, t := range targets {
		if want[t.Platform] {
			out = append(out, t)
		}
	}
	return out
}
