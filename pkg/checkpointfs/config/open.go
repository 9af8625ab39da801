package config

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

// Open validates the settings and builds the configured saver. The returned
// close func releases backend resources and is never nil.
func (s Store) Open(logger *slog.Logger) (checkpoint.Saver, func() error, error) {
	noop := func() error { return nil }
	if err := s.Validate(); err != nil {
		return nil, noop, fmt.Errorf("invalid config: %w", err)
	}
	codec, err := serde.Lookup(s.Format)
	if err != nil {
		return nil, noop, err
	}

	switch s.Backend {
	case BackendSQLite:
		saver, err := checkpoint.NewSQLiteSaver(s.SQLitePath, codec)
		if err != nil {
			return nil, noop, err
		}
		return saver, saver.Close, nil
	case BackendMemory:
		saver := checkpoint.NewMemorySaver()
		return saver, saver.Close, nil
	}

	opts := checkpointfs.Options{
		Root:       s.Root,
		Delimiter:  s.Delimiter,
		Serializer: codec,
		Logger:     logger,
	}
	if s.Metrics {
		opts.Metrics = observability.NewMetricsRecorder()
	}
	if s.Tracing {
		opts.Spans = observability.NewSpanManager()
	}
	saver, err := checkpointfs.New(opts)
	if err != nil {
		return nil, noop, err
	}
	return saver, noop, nil
}
