// Package serde provides the pluggable value codecs used to encode
// checkpoints, metadata and pending writes.
package serde

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serializer encodes and decodes values. Format names the encoding so a
// codec can be selected by configuration.
type Serializer interface {
	Format() string
	Dumps(v any) ([]byte, error)
	Loads(data []byte, v any) error
}

// Format names.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat indicates no serializer is registered for a format name.
var ErrUnknownFormat = errors.New("unknown serializer format")

// JSON encodes values with encoding/json. Numbers decoded into interface
// values become float64.
type JSON struct{}

// Format implements Serializer.
func (JSON) Format() string { return FormatJSON }

// Dumps implements Serializer.
func (JSON) Dumps(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return data, nil
}

// Loads implements Serializer.
func (JSON) Loads(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

// YAML encodes values with gopkg.in/yaml.v3. Integers decoded into
// interface values stay int.
type YAML struct{}

// Format implements Serializer.
func (YAML) Format() string { return FormatYAML }

// Dumps implements Serializer.
func (YAML) Dumps(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	return data, nil
}

// Loads implements Serializer.
func (YAML) Loads(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

var registry = map[string]Serializer{
	FormatJSON: JSON{},
	FormatYAML: YAML{},
}

// Default returns the JSON serializer.
func Default() Serializer {
	return JSON{}
}

// Lookup returns the serializer registered for format (case-insensitive).
// "yml" is accepted as an alias for yaml.
func Lookup(format string) (Serializer, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	if name == "yml" {
		name = FormatYAML
	}
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
	return s, nil
}

// Formats lists the registered format names in sorted order.
func Formats() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
