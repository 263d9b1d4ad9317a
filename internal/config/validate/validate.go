package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wyattjoh/next-dev-utils/internal/config/schema"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const configSchemaName = "next-dev-utils-config.schema.json"

var (
	configOnce   sync.Once
	configSchema *jsonschema.Schema
	configErr    error
)

// Compile loads a schema document registered under name.
func Compile(name string, schemaBytes []byte) (*jsonschema.Schema, error) {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, bytes.NewReader(schemaBytes)); err != nil {
		return nil, fmt.Errorf("loading schema %q: %w", name, err)
	}
	sch, err := comp.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %q: %w", name, err)
	}
	return sch, nil
}

// Validate runs sch against the JSON in data. Violations are reported one
// per line as "<instance path>: <message>".
func Validate(sch *jsonschema.Schema, data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", sch.Location, err)
	}
	err := sch.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("schema validation against %q failed: %w", sch.Location, err)
	}
	return fmt.Errorf("schema validation failed:\n  %s", strings.Join(violations(ve), "\n  "))
}

func violations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "(root)"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, violations(c)...)
	}
	return out
}

// ValidateConfigJSON runs the embedded config schema against data. The
// schema is compiled on first use.
func ValidateConfigJSON(data []byte) error {
	configOnce.Do(func() {
		configSchema, configErr = Compile(configSchemaName, schema.ConfigSchema)
	})
	if configErr != nil {
		return configErr
	}
	return Validate(configSchema, data)
}
