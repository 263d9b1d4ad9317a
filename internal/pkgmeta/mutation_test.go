package pkgmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wyattjoh/next-dev-utils/internal/fault"
)

func writePackage(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write package.json: %v", err)
	}
	return dir
}

func TestReleaseRestoresOriginalBytes(t *testing.T) {
	// Deliberately unusual formatting: restoration must be byte-exact.
	original := "{\"name\":\"next\",   \"version\":\"1.0.0\"}"
	dir := writePackage(t, original)

	mut, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	meta := mut.Original()
	if err := meta.SetVersion("2.0.0"); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	if err := mut.Write(meta); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	onDisk, err := Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if onDisk.Version() != "2.0.0" {
		t.Errorf("expected rewritten version, got %q", onDisk.Version())
	}

	if err := mut.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if string(data) != original {
		t.Errorf("package.json not restored byte-for-byte: %q", data)
	}
}

func TestReleaseRestoresFileMode(t *testing.T) {
	tests := []struct {
		name    string
		replace bool
	}{
		{"rewritten in place", false},
		{"replaced while held", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writePackage(t, `{"name":"next","version":"1.0.0"}`)
			path := filepath.Join(dir, FileName)
			if err := os.Chmod(path, 0o664); err != nil {
				t.Fatal(err)
			}

			mut, err := Acquire(dir)
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}
			meta := mut.Original()
			if err := meta.SetVersion("2.0.0"); err != nil {
				t.Fatal(err)
			}
			if err := mut.Write(meta); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if tt.replace {
				if err := os.Remove(path); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			if err := mut.Release(); err != nil {
				t.Fatalf("Release failed: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if got := info.Mode().Perm(); got != 0o664 {
				t.Errorf("expected mode 0664 after release, got %#o", got)
			}
		})
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := writePackage(t, `{"name":"next"}`)
	mut, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := mut.Release(); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := mut.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if err := mut.Write(mut.Original()); err == nil {
		t.Error("expected Write after Release to fail")
	}
}

func TestStageRemovedOnRelease(t *testing.T) {
	dir := writePackage(t, `{"name":"@next/swc-linux-x64-gnu"}`)
	src := filepath.Join(t.TempDir(), "next-swc.linux-x64-gnu.node")
	if err := os.WriteFile(src, []byte("binary"), 0o755); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}

	mut, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	staged, err := mut.Stage(src, filepath.Base(src))
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if _, err := mut.Stage(src, filepath.Base(src)); err == nil {
		t.Error("expected staging over an existing file to fail")
	}
	if _, err := mut.Stage(src, "../escape.node"); err == nil {
		t.Error("expected staging outside the package directory to fail")
	}

	if err := mut.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("expected staged file to be removed, stat err: %v", err)
	}
}

func TestReleaseFailureIsFatal(t *testing.T) {
	dir := writePackage(t, `{"name":"next"}`)
	mut, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := mut.Write(mut.Original()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Replace the package directory with a file so restoration cannot write.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("failed to remove dir: %v", err)
	}
	if err := os.WriteFile(dir, []byte("blocker"), 0o644); err != nil {
		t.Fatalf("failed to create blocker: %v", err)
	}

	err = mut.Release()
	if err == nil {
		t.Fatal("expected Release to fail")
	}
	if !fault.IsFatal(err) {
		t.Errorf("expected a fatal error, got %v", err)
	}
}

func TestAcquireMissingPackage(t *testing.T) {
	if _, err := Acquire(t.TempDir()); err == nil {
		t.Fatal("expected error for a directory without package.json")
	}
}
