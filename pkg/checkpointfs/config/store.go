package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

// Backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Settings keys, shared by files and (upper-cased, CKPT_ prefixed) the environment.
const (
	KeyBackend    = "backend"
	KeyRoot       = "root"
	KeyDelimiter  = "delimiter"
	KeyFormat     = "format"
	KeySQLitePath = "sqlite_path"
	KeyLogLevel   = "log_level"
	KeyLogFormat  = "log_format"
	KeyMetrics    = "metrics"
	KeyTracing    = "tracing"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CKPT_"

// Store holds the settings for opening a checkpoint saver.
type Store struct {
	Backend    string `json:"backend" yaml:"backend"`
	Root       string `json:"root" yaml:"root"`
	Delimiter  string `json:"delimiter" yaml:"delimiter"`
	Format     string `json:"format" yaml:"format"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogFormat  string `json:"log_format" yaml:"log_format"`
	Metrics    bool   `json:"metrics" yaml:"metrics"`
	Tracing    bool   `json:"tracing" yaml:"tracing"`
}

// Default returns the file backend with the default root and delimiter.
func Default() Store {
	return Store{
		Backend:    BackendFile,
		Root:       checkpointfs.DefaultRoot,
		Delimiter:  checkpointfs.DefaultDelimiter,
		Format:     serde.FormatJSON,
		SQLitePath: "./checkpoints.db",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// FromFile loads Default overlaid with the file at path.
func FromFile(path string) (Store, error) {
	v, err := ReadValues(path)
	if err != nil {
		return Store{}, err
	}
	return Default().Apply(v), nil
}

// FromYAML loads Default overlaid with a YAML document.
func FromYAML(data []byte) (Store, error) {
	v, err := parseYAML(data)
	if err != nil {
		return Store{}, err
	}
	return Default().Apply(v), nil
}

// FromJSON loads Default overlaid with a JSON document.
func FromJSON(data []byte) (Store, error) {
	v, err := parseJSON(data)
	if err != nil {
		return Store{}, err
	}
	return Default().Apply(v), nil
}

// Apply overlays the keys present in v.
func (s Store) Apply(v Values) Store {
	s.Backend = v.String(KeyBackend, s.Backend)
	s.Root = v.String(KeyRoot, s.Root)
	s.Delimiter = v.String(KeyDelimiter, s.Delimiter)
	s.Format = v.String(KeyFormat, s.Format)
	s.SQLitePath = v.String(KeySQLitePath, s.SQLitePath)
	s.LogLevel = v.String(KeyLogLevel, s.LogLevel)
	s.LogFormat = v.String(KeyLogFormat, s.LogFormat)
	s.Metrics = v.Bool(KeyMetrics, s.Metrics)
	s.Tracing = v.Bool(KeyTracing, s.Tracing)
	return s
}

// ApplyEnv overlays CKPT_* variables found by lookup (typically os.LookupEnv).
func (s Store) ApplyEnv(lookup func(string) (string, bool)) Store {
	data := make(map[string]any)
	for _, key := range []string{
		KeyBackend, KeyRoot, KeyDelimiter, KeyFormat, KeySQLitePath,
		KeyLogLevel, KeyLogFormat, KeyMetrics, KeyTracing,
	} {
		if val, ok := lookup(EnvPrefix + strings.ToUpper(key)); ok {
			data[key] = val
		}
	}
	return s.Apply(NewValues(data))
}

// ExpandPaths replaces ${VAR} and $VAR in the path settings using lookup.
// Unset variables expand to "".
func (s Store) ExpandPaths(lookup func(string) (string, bool)) Store {
	mapping := func(name string) string {
		v, _ := lookup(name)
		return v
	}
	s.Root = os.Expand(s.Root, mapping)
	s.SQLitePath = os.Expand(s.SQLitePath, mapping)
	return s
}

// Validate reports every invalid setting.
func (s Store) Validate() error {
	var errs []error

	backends := []string{BackendFile, BackendSQLite, BackendMemory}
	if !slices.Contains(backends, s.Backend) {
		errs = append(errs, fmt.Errorf("backend %q: want one of %s", s.Backend, strings.Join(backends, ", ")))
	}
	if s.Backend == BackendFile && s.Root == "" {
		errs = append(errs, errors.New("root: required for the file backend"))
	}
	if s.Backend == BackendSQLite && s.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path: required for the sqlite backend"))
	}
	if strings.ContainsAny(s.Delimiter, `/\`) {
		errs = append(errs, fmt.Errorf("delimiter %q: must not contain a path separator", s.Delimiter))
	}
	if _, err := serde.Lookup(s.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if _, err := observability.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if f := strings.ToLower(s.LogFormat); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log_format %q: want text or json", s.LogFormat))
	}
	return errors.Join(errs...)
}
