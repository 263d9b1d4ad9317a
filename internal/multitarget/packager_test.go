package multitarget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/pkgmeta"
)

var platforms = []string{"darwin-arm64", "linux-x64-gnu", "win32-x64-msvc"}

// metadataFor uses uneven formatting so restoration has to be byte-exact.
func metadataFor(platform string) string {
	return fmt.Sprintf("{\n    \"name\": \"@next/swc-%s\",\n  \"version\":\"0.0.0\",\n  \"main\": \"next-swc.%s.node\"\n}", platform, platform)
}

func setupLayout(t *testing.T, platforms ...string) Layout {
	t.Helper()
	layout := Layout{Root: t.TempDir()}
	if err := os.MkdirAll(layout.NativeDir(), 0o755); err != nil {
		t.Fatalf("failed to create native dir: %v", err)
	}
	for _, p := range platforms {
		dir := filepath.Join(layout.NpmDir(), p)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, pkgmeta.FileName), []byte(metadataFor(p)), 0o644); err != nil {
			t.Fatalf("failed to write metadata: %v", err)
		}
		if err := os.WriteFile(layout.BinaryPath(p), []byte("binary-"+p), 0o755); err != nil {
			t.Fatalf("failed to write binary: %v", err)
		}
	}
	return layout
}

type fakePacker struct {
	t       *testing.T
	version string
	fail    map[string]bool

	mu       sync.Mutex
	observed map[string]string
}

func (f *fakePacker) PackArtifact(ctx context.Context, opts pack.Options) (*pack.Result, error) {
	platform := filepath.Base(opts.Dir)

	meta, err := pkgmeta.Read(opts.Dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(opts.Dir, fmt.Sprintf("next-swc.%s.node", platform))); err != nil {
		return nil, fmt.Errorf("binary not staged: %w", err)
	}
	if opts.Progress {
		f.t.Errorf("per-target progress should be disabled for %s", platform)
	}

	f.mu.Lock()
	if f.observed == nil {
		f.observed = map[string]string{}
	}
	f.observed[platform] = meta.Version()
	f.mu.Unlock()

	if f.fail[platform] {
		return nil, fmt.Errorf("pack of %s exploded", platform)
	}
	url := "https://store.invalid/" + meta.Name()
	if opts.Mode == pack.ModeDryRun {
		url = pack.DryRunURL
	}
	return &pack.Result{URL: url}, nil
}

func assertRestored(t *testing.T, layout Layout, platforms ...string) {
	t.Helper()
	for _, p := range platforms {
		dir := filepath.Join(layout.NpmDir(), p)
		data, err := os.ReadFile(filepath.Join(dir, pkgmeta.FileName))
		if err != nil {
			t.Fatalf("failed to read metadata for %s: %v", p, err)
		}
		if !bytes.Equal(data, []byte(metadataFor(p))) {
			t.Errorf("metadata for %s not restored byte-for-byte:\n%s", p, data)
		}
		if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("next-swc.%s.node", p))); !os.IsNotExist(err) {
			t.Errorf("staged binary for %s not removed", p)
		}
	}
}

func TestDiscover(t *testing.T) {
	layout := setupLayout(t, platforms...)

	// A platform without a built binary is skipped.
	unbuilt := filepath.Join(layout.NpmDir(), "linux-arm64-musl")
	if err := os.MkdirAll(unbuilt, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(unbuilt, pkgmeta.FileName), []byte(metadataFor("linux-arm64-musl")), 0o644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}

	targets, err := Discover(layout)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	var got []string
	for _, tg := range targets {
		got = append(got, tg.Platform)
		if tg.BinaryPath != layout.BinaryPath(tg.Platform) {
			t.Errorf("unexpected binary path %s", tg.BinaryPath)
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(platforms) {
		t.Errorf("discovered %v, want %v", got, platforms)
	}
}

func TestDiscoverMissingLayout(t *testing.T) {
	if _, err := Discover(Layout{Root: t.TempDir()}); err == nil {
		t.Fatal("expected error for a checkout without native packages")
	}
}

func TestParsePlatformsAndFilter(t *testing.T) {
	got := ParsePlatforms(" darwin-arm64, ,linux-x64-gnu,darwin-arm64")
	if fmt.Sprint(got) != "[darwin-arm64 linux-x64-gnu]" {
		t.Errorf("unexpected platforms %v", got)
	}

	targets := []Target{{Platform: "darwin-arm64"}, {Platform: "linux-x64-gnu"}, {Platform: "win32-x64-msvc"}}
	if n := len(Filter(targets, nil)); n != 3 {
		t.Errorf("empty filter should keep all targets, kept %d", n)
	}
	if n := len(Filter(targets, got)); n != 2 {
		t.Errorf("expected 2 filtered targets, got %d", n)
	}
}

func TestPackageAllSuccess(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	fp := &fakePacker{t: t}
	p := &Packager{Packer: fp}

	res, err := p.PackageAll(context.Background(), targets, Options{Version: "15.1.0-canary.7", Progress: true})
	if err != nil {
		t.Fatalf("PackageAll failed: %v", err)
	}
	if res.Total != 3 || len(res.Successful) != 3 || len(res.Failed) != 0 {
		t.Errorf("unexpected result: %s", res.Summary())
	}
	for _, pl := range platforms {
		if fp.observed[pl] != "15.1.0-canary.7" {
			t.Errorf("%s packed with version %q", pl, fp.observed[pl])
		}
		if res.URLs["@next/swc-"+pl] != "https://store.invalid/@next/swc-"+pl {
			t.Errorf("missing URL for %s", pl)
		}
	}
	assertRestored(t, layout, platforms...)
}

func TestPackageAllPartialFailureRestoresEverything(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	p := &Packager{Packer: &fakePacker{t: t, fail: map[string]bool{"linux-x64-gnu": true}}, Workers: 2}

	res, err := p.PackageAll(context.Background(), targets, Options{Version: "15.1.0"})
	if err != nil {
		t.Fatalf("partial failure should not be fatal: %v", err)
	}
	if len(res.Successful) != 2 || len(res.Failed) != 1 || res.Total != 3 {
		t.Fatalf("unexpected counts: %s", res.Summary())
	}
	if res.Failed[0].Target.Platform != "linux-x64-gnu" || res.Failed[0].Err == nil {
		t.Errorf("unexpected failed entry: %+v", res.Failed[0])
	}

	var names []string
	for name := range res.URLs {
		names = append(names, name)
	}
	sort.Strings(names)
	if fmt.Sprint(names) != "[@next/swc-darwin-arm64 @next/swc-win32-x64-msvc]" {
		t.Errorf("URLs should hold exactly the successful targets, got %v", names)
	}
	assertRestored(t, layout, platforms...)
}

func TestPackageAllEveryTargetFails(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	fail := map[string]bool{}
	for _, pl := range platforms {
		fail[pl] = true
	}
	p := &Packager{Packer: &fakePacker{t: t, fail: fail}}

	res, err := p.PackageAll(context.Background(), targets, Options{Version: "15.1.0"})
	if !errors.Is(err, ErrAllTargetsFailed) {
		t.Fatalf("expected ErrAllTargetsFailed, got %v", err)
	}
	if !fault.IsFatal(err) {
		t.Error("all targets failing should be fatal")
	}
	if res == nil || len(res.Failed) != 3 || len(res.URLs) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	assertRestored(t, layout, platforms...)
}

func TestPackageAllFilterMatchesNothing(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	fp := &fakePacker{t: t}
	p := &Packager{Packer: fp}

	_, err := p.PackageAll(context.Background(), targets, Options{Filter: []string{"freebsd-x64"}})
	if !errors.Is(err, ErrFilterMatchedNone) || !fault.IsFatal(err) {
		t.Fatalf("expected fatal ErrFilterMatchedNone, got %v", err)
	}
	if len(fp.observed) != 0 {
		t.Error("nothing should be packed when the filter matches nothing")
	}
}

func TestPackageAllNoTargets(t *testing.T) {
	p := &Packager{Packer: &fakePacker{t: t}}
	if _, err := p.PackageAll(context.Background(), nil, Options{}); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestPackageAllFilterSubset(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	fp := &fakePacker{t: t}
	p := &Packager{Packer: fp}

	res, err := p.PackageAll(context.Background(), targets, Options{Filter: []string{"darwin-arm64"}})
	if err != nil {
		t.Fatalf("PackageAll failed: %v", err)
	}
	if res.Total != 1 || len(fp.observed) != 1 {
		t.Errorf("expected only the filtered target to be packed, got %s", res.Summary())
	}
	if fp.observed["darwin-arm64"] != "0.0.0" {
		t.Errorf("empty version should leave the metadata version alone, got %q", fp.observed["darwin-arm64"])
	}
}

func TestPackageAllDryRun(t *testing.T) {
	layout := setupLayout(t, platforms...)
	targets, _ := Discover(layout)
	p := &Packager{Packer: &fakePacker{t: t}}

	res, err := p.PackageAll(context.Background(), targets, Options{Version: "15.1.0", Mode: pack.ModeDryRun})
	if err != nil {
		t.Fatalf("PackageAll failed: %v", err)
	}
	if len(res.DryRun) != 3 || len(res.Successful) != 0 {
		t.Errorf("expected every target to be dry-run, got %s", res.Summary())
	}
	for name, url := range res.URLs {
		if url != pack.DryRunURL {
			t.Errorf("%s: expected dry-run URL, got %q", name, url)
		}
	}
	assertRestored(t, layout, platforms...)
}

func TestPackageAllRestorationFailureIsFatal(t *testing.T) {
	layout := setupLayout(t, "darwin-arm64")
	targets, _ := Discover(layout)
	dir := targets[0].MetadataDir

	// The packer removes write access to the package directory, so the
	// staged binary cannot be deleted and metadata cannot be rewritten.
	packer := packerFunc(func(ctx context.Context, opts pack.Options) (*pack.Result, error) {
		if err := os.Chmod(dir, 0o555); err != nil {
			return nil, err
		}
		return &pack.Result{URL: "https://store.invalid/x"}, nil
	})
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	p := &Packager{Packer: packer}
	res, err := p.PackageAll(context.Background(), targets, Options{Version: "15.1.0"})
	if !errors.Is(err, ErrRestorationFailure) || !fault.IsFatal(err) {
		t.Fatalf("expected fatal ErrRestorationFailure, got %v", err)
	}
	if len(res.Failed) != 1 || len(res.URLs) != 0 {
		t.Errorf("a target that could not be restored must count as failed: %s", res.Summary())
	}
}

type packerFunc func(ctx context.Context, opts pack.Options) (*pack.Result, error)

func (f packerFunc) PackArtifact(ctx context.Context, opts pack.Options) (*pack.Result, error) {
	return f(ctx, opts)
}
