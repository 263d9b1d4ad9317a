package pkgmeta

import (
	"strings"
	"testing"
)

const sample = `{
  "name": "@next/swc-linux-x64-gnu",
  "version": "15.0.0",
  "license": "MIT",
  "main": "next-swc.linux-x64-gnu.node",
  "optionalDependencies": {
    "@next/swc-darwin-arm64": "15.0.0",
    "@next/swc-linux-x64-gnu": "15.0.0"
  }
}
`

func TestParseAccessors(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Name() != "@next/swc-linux-x64-gnu" {
		t.Errorf("unexpected name %q", m.Name())
	}
	if m.Version() != "15.0.0" {
		t.Errorf("unexpected version %q", m.Version())
	}
	if m.Private() {
		t.Error("expected package not to be private")
	}
	if !m.HasOptionalDependencies() {
		t.Error("expected optionalDependencies to be present")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array", `["a"]`},
		{"truncated", `{"name": "x"`},
		{"trailing", `{"name": "x"} {}`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.input)); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestEncodeRoundTripPreservesOrder(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(out) != sample {
		t.Errorf("round trip changed the document:\n%s", out)
	}
}

func TestMergeOptionalDependencies(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	url := "https://bucket.example.com/swc.tgz?X-Amz-Signature=abc&X-Amz-Expires=86400"
	if err := m.MergeOptionalDependencies(map[string]string{
		"@next/swc-linux-x64-gnu": url,
		"@next/swc-win32-x64-msvc": "file.tgz",
	}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	deps, err := m.OptionalDependencies()
	if err != nil {
		t.Fatalf("OptionalDependencies failed: %v", err)
	}
	if deps["@next/swc-linux-x64-gnu"] != url {
		t.Errorf("override not applied: %q", deps["@next/swc-linux-x64-gnu"])
	}
	if deps["@next/swc-darwin-arm64"] != "15.0.0" {
		t.Errorf("untouched entry changed: %q", deps["@next/swc-darwin-arm64"])
	}
	if len(deps) != 3 {
		t.Errorf("expected 3 entries, got %d", len(deps))
	}

	out, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(out), `\u0026`) {
		t.Error("URL query separators were HTML escaped")
	}
	if !strings.Contains(string(out), url) {
		t.Errorf("expected the URL verbatim in %s", out)
	}
	darwin := strings.Index(string(out), "swc-darwin-arm64")
	win := strings.Index(string(out), "swc-win32-x64-msvc")
	if darwin < 0 || win < 0 || darwin > win {
		t.Error("existing entries should keep their position ahead of new ones")
	}
}

func TestMergeCreatesOptionalDependencies(t *testing.T) {
	m, err := Parse([]byte(`{"name":"next","version":"1.0.0"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.HasOptionalDependencies() {
		t.Fatal("expected no optionalDependencies")
	}
	if err := m.MergeOptionalDependencies(map[string]string{"a": "1"}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	deps, _ := m.OptionalDependencies()
	if deps["a"] != "1" {
		t.Errorf("expected merged entry, got %v", deps)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m, _ := Parse([]byte(sample))
	c := m.Clone()
	if err := c.SetVersion("0.0.0-canary"); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	if m.Version() != "15.0.0" {
		t.Errorf("clone mutation leaked into original: %q", m.Version())
	}
	if c.Version() != "0.0.0-canary" {
		t.Errorf("unexpected clone version %q", c.Version())
	}
}

func TestPrivate(t *testing.T) {
	m, _ := Parse([]byte(`{"name":"x","private":true}`))
	if !m.Private() {
		t.Error("expected private package")
	}
}
