package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wyattjoh/next-dev-utils/internal/utils/shell"
	"gopkg.in/yaml.v3"
)

// SecretRefPrefix marks a value stored as a 1Password reference.
const SecretRefPrefix = "op://"

var ErrSecretReference = errors.New("secret references are not supported by this resolver")

// Value is a configuration string that is either a plain value or a
// reference to a secret held elsewhere.
type Value struct {
	plain string
	ref   string
}

func Plain(s string) Value { return Value{plain: s} }

func SecretRef(ref string) Value { return Value{ref: ref} }

// ParseValue treats strings with the op:// scheme as secret references.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, SecretRefPrefix) {
		return SecretRef(s)
	}
	return Plain(s)
}

func (v Value) IsSecretRef() bool { return v.ref != "" }

func (v Value) IsZero() bool { return v.plain == "" && v.ref == "" }

// Raw is the stored form: the reference for secrets, the value otherwise.
func (v Value) Raw() string {
	if v.ref != "" {
		return v.ref
	}
	return v.plain
}

// Masked is safe to print.
func (v Value) Masked() string {
	switch {
	case v.ref != "":
		return v.ref
	case v.plain == "":
		return ""
	default:
		return "********"
	}
}

func (v Value) MarshalYAML() (interface{}, error) {
	return v.Raw(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a string value", node.Line)
	}
	*v = ParseValue(node.Value)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = ParseValue(s)
	return nil
}

// Resolver turns a Value into the string it stands for.
type Resolver interface {
	Resolve(ctx context.Context, v Value) (string, error)
}

// PlainResolver returns plain values and rejects secret references.
type PlainResolver struct{}

func (PlainResolver) Resolve(_ context.Context, v Value) (string, error) {
	if v.IsSecretRef() {
		return "", fmt.Errorf("%s: %w", v.ref, ErrSecretReference)
	}
	return v.plain, nil
}

// OnePasswordResolver reads secret references with the 1Password CLI.
type OnePasswordResolver struct {
	// Executor defaults to shell.Default.
	Executor shell.Executor
}

func (r OnePasswordResolver) Resolve(ctx context.Context, v Value) (string, error) {
	if !v.IsSecretRef() {
		return v.plain, nil
	}
	exec := r.Executor
	if exec == nil {
		exec = shell.Default
	}
	out, err := exec.Exec(ctx, shell.Command{Name: "op", Args: []string{"read", v.ref}})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", v.ref, err)
	}
	secret := strings.TrimRight(out, "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret %s is empty", v.ref)
	}
	return secret, nil
}
