// Package pkgmeta reads and transactionally rewrites package.json files.
package pkgmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FileName is the package metadata file inside a package directory.
const FileName = "package.json"

// Metadata is a parsed package.json. Unknown fields and key order survive a
// parse/encode round trip.
type Metadata struct {
	obj *object
}

// Parse decodes package metadata.
func Parse(data []byte) (*Metadata, error) {
	obj, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing package metadata: %w", err)
	}
	return &Metadata{obj: obj}, nil
}

func (m *Metadata) str(key string) string {
	var s string
	if ok, err := m.obj.get(key, &s); !ok || err != nil {
		return ""
	}
	return s
}

func (m *Metadata) Name() string    { return m.str("name") }
func (m *Metadata) Version() string { return m.str("version") }

// Private reports whether the package refuses to be published.
func (m *Metadata) Private() bool {
	var b bool
	if ok, err := m.obj.get("private", &b); !ok || err != nil {
		return false
	}
	return b
}

// HasOptionalDependencies reports whether an optionalDependencies object is
// present.
func (m *Metadata) HasOptionalDependencies() bool {
	raw, ok := m.obj.fields["optionalDependencies"]
	return ok && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}

// OptionalDependencies returns the optionalDependencies map (empty when
// absent).
func (m *Metadata) OptionalDependencies() (map[string]string, error) {
	deps := map[string]string{}
	if _, err := m.obj.get("optionalDependencies", &deps); err != nil {
		return nil, err
	}
	return deps, nil
}

// SetVersion overwrites the version field.
func (m *Metadata) SetVersion(version string) error {
	return m.obj.set("version", version)
}

// MergeOptionalDependencies writes overrides into optionalDependencies.
// Existing entries keep their position; new ones are appended in sorted
// order. Overrides win over existing values.
func (m *Metadata) MergeOptionalDependencies(overrides map[string]string) error {
	deps := newObject()
	if raw, ok := m.obj.fields["optionalDependencies"]; ok {
		parsed, err := parseObject(raw)
		if err != nil {
			return fmt.Errorf("decoding optionalDependencies: %w", err)
		}
		deps = parsed
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := deps.set(name, overrides[name]); err != nil {
			return err
		}
	}

	raw, err := deps.MarshalJSON()
	if err != nil {
		return err
	}
	m.obj.setRaw("optionalDependencies", raw)
	return nil
}

// Clone returns an independent copy.
func (m *Metadata) Clone() *Metadata {
	return &Metadata{obj: m.obj.clone()}
}

// Encode renders the metadata with two-space indentation and a trailing
// newline.
func (m *Metadata) Encode() ([]byte, error) {
	compact, err := m.obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var flat, out bytes.Buffer
	if err := json.Compact(&flat, compact); err != nil {
		return nil, fmt.Errorf("encoding package metadata: %w", err)
	}
	if err := json.Indent(&out, flat.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("encoding package metadata: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
