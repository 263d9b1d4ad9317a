package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wyattjoh/next-dev-utils/internal/archive"
	"github.com/wyattjoh/next-dev-utils/internal/multitarget"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
)

func packResult(name, version, url string, decision pack.UploadDecision) *pack.Result {
	return &pack.Result{
		Artifact:  &archive.Artifact{Name: name, Version: version, Filename: archive.Filename(name, version)},
		Digest:    "d41d8cd98f00b204e9800998ecf8427e",
		Algorithm: "md5",
		Size:      42,
		URL:       url,
		Decision:  decision,
	}
}

func TestNewSingleArtifact(t *testing.T) {
	m := New("run-1", pack.ModeUpload, packResult("my-lib", "1.2.3", "https://b/x.tgz", pack.DecisionSkip), nil)

	if m.RunID != "run-1" || m.Mode != "upload" || m.SchemaVersion != SchemaVersion {
		t.Errorf("unexpected header %+v", m)
	}
	if m.Artifact == nil || m.Artifact.File != "my-lib-1.2.3.tgz" || m.Artifact.Decision != "skip" {
		t.Errorf("unexpected artifact %+v", m.Artifact)
	}
	if len(m.Targets) != 0 {
		t.Errorf("expected no targets, got %d", len(m.Targets))
	}
}

func TestNewGeneratesRunID(t *testing.T) {
	a := New("", pack.ModeDryRun, nil, nil)
	b := New("", pack.ModeDryRun, nil, nil)
	if a.RunID == "" || a.RunID == b.RunID {
		t.Errorf("expected distinct generated run ids, got %q and %q", a.RunID, b.RunID)
	}
	if a.Artifact != nil {
		t.Error("expected no artifact for a nil result")
	}
}

func TestNewTargetsSortedWithErrors(t *testing.T) {
	targets := &multitarget.Result{
		Successful: []multitarget.TargetResult{{
			Target:      multitarget.Target{Platform: "linux-x64-gnu"},
			PackageName: "@next/swc-linux-x64-gnu",
			Status:      multitarget.StatusSucceeded,
			Pack:        packResult("@next/swc-linux-x64-gnu", "15.0.0", "https://b/l.tgz", pack.DecisionUpload),
		}},
		Failed: []multitarget.TargetResult{{
			Target: multitarget.Target{Platform: "darwin-arm64"},
			Status: multitarget.StatusFailed,
			Err:    errors.New("pnpm pack failed"),
		}},
	}

	m := New("run-2", pack.ModeServe, packResult("next", "15.0.0", "http://127.0.0.1:1/next-15.0.0.tgz", pack.DecisionUpload), targets)
	if len(m.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(m.Targets))
	}
	if m.Targets[0].Platform != "darwin-arm64" || m.Targets[0].Error != "pnpm pack failed" || m.Targets[0].Artifact != nil {
		t.Errorf("unexpected failed target %+v", m.Targets[0])
	}
	if m.Targets[1].Artifact == nil || m.Targets[1].Artifact.URL != "https://b/l.tgz" {
		t.Errorf("unexpected succeeded target %+v", m.Targets[1])
	}
	if m.Artifact.Decision != "" {
		t.Errorf("serve mode should not record an upload decision, got %q", m.Artifact.Decision)
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "manifest.json")
	m := New("run-3", pack.ModeUpload, packResult("next", "15.0.0", "https://b/n.tgz", pack.DecisionUpload), nil)

	if err := WriteToFile(m, path); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.RunID != "run-3" || got.Artifact.URL != "https://b/n.tgz" || got.Artifact.Size != 42 {
		t.Errorf("unexpected manifest %+v", got)
	}
}

func TestWriteRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.json")
	if err := os.WriteFile(target, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.json")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := WriteToFile(New("r", pack.ModeDryRun, nil, nil), link); err == nil {
		t.Fatal("expected writing through a symlink to fail")
	}
}
