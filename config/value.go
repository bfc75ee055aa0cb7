package config

import (
	"fmt"
	"os"
	"strings"
)

// ValueSpec represents a configuration value that is either literal or
// resolved when the pipeline is built
type ValueSpec interface {
	IsStatic() bool
	Resolve() (any, error)
}

// StaticValue represents a literal value (number, string, bool, etc.)
type StaticValue struct {
	Value any
}

func NewStaticValue(value any) StaticValue {
	return StaticValue{
		Value: value,
	}
}

func (s StaticValue) IsStatic() bool {
	return true
}

func (s StaticValue) Resolve() (any, error) {
	return s.Value, nil
}

// EnvReference represents a reference to an environment variable ($env:NAME)
type EnvReference struct {
	Name string
}

func (e EnvReference) IsStatic() bool {
	return false
}

func (e EnvReference) Resolve() (any, error) {
	value := os.Getenv(e.Name)
	if value == "" {
		return nil, fmt.Errorf("environment variable '%s' is not set or is empty", e.Name)
	}

	return value, nil
}

// String masks the value for logging
func (e EnvReference) String() string {
	return fmt.Sprintf("$env:%s", e.Name)
}

// ParseConfigValue converts a configuration value to a ValueSpec.
// Recognizes the "$env:" prefix for environment references.
func ParseConfigValue(v any) ValueSpec {
	if str, ok := v.(string); ok {
		if name, found := strings.CutPrefix(str, "$env:"); found {
			return EnvReference{Name: strings.TrimSpace(name)}
		}
	}
	return StaticValue{Value: v}
}

// ResolveString resolves a string setting that may be an $env: reference.
// An empty input stays empty.
func ResolveString(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	v, err := ParseConfigValue(s).Resolve()
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}
