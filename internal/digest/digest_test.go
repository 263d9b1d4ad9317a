package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSum(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		algorithm string
		content   string
		expected  string
	}{
		{"default", "", "hello", "5d41402abc4b2a76b9719d911017c592"},
		{"md5", "md5", "hello", "5d41402abc4b2a76b9719d911017c592"},
		{"upper case", "MD5", "hello", "5d41402abc4b2a76b9719d911017c592"},
		{"md5 empty", "md5", "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"blake3 empty", "blake3", "", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".tgz")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
			h, err := New(tt.algorithm)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", tt.algorithm, err)
			}
			got, err := h.Sum(path)
			if err != nil {
				t.Fatalf("Sum failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Sum() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestSumDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.tgz")
	data := make([]byte, 1<<20)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	for _, alg := range []string{MD5, BLAKE3} {
		h, _ := New(alg)
		first, err := h.Sum(path)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		for i := 0; i < 3; i++ {
			again, err := h.Sum(path)
			if err != nil {
				t.Fatalf("Sum failed: %v", err)
			}
			if again != first {
				t.Errorf("%s digest changed between runs: %s != %s", alg, first, again)
			}
		}
	}
}

func TestNewUnsupported(t *testing.T) {
	if _, err := New("sha1"); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}

func TestSumMissingFile(t *testing.T) {
	h, _ := New(MD5)
	if _, err := h.Sum(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
