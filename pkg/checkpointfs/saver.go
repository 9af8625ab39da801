package checkpointfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/fsutil"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

// Options configures a Saver. The zero value is usable: it stores under
// DefaultRoot with DefaultDelimiter, encodes with JSON and does not log,
// record metrics or trace.
type Options struct {
	// Root is the folder every thread is stored under.
	Root string
	// Delimiter joins task id, channel and slot in write file names.
	// Task ids and channels containing it are rejected.
	Delimiter string
	// Serializer encodes checkpoints, metadata and write values.
	Serializer serde.Serializer
	Logger     *slog.Logger
	Metrics    observability.MetricsRecorder
	Spans      observability.SpanManager
}

// Saver stores checkpoints as plain files. It holds no mutable state beyond
// its configuration, so any number of Savers may share a root.
type Saver struct {
	paths   *PathResolver
	serde   serde.Serializer
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

var _ checkpoint.Saver = (*Saver)(nil)

// New creates a Saver. The root folder is created lazily by the first write.
func New(opts Options) (*Saver, error) {
	paths := NewPathResolver(opts.Root, opts.Delimiter)
	if strings.ContainsAny(paths.Delimiter(), `/\`) {
		return nil, fmt.Errorf("delimiter %q: must not contain a path separator", paths.Delimiter())
	}

	s := &Saver{
		paths:   paths,
		serde:   opts.Serializer,
		metrics: opts.Metrics,
		spans:   opts.Spans,
	}
	if s.serde == nil {
		s.serde = serde.Default()
	}
	if s.metrics == nil {
		s.metrics = observability.NoopMetrics{}
	}
	if s.spans == nil {
		s.spans = observability.NoopSpanManager{}
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With(slog.String("component", "checkpointfs"))
	}
	return s, nil
}

// Paths returns the resolver used to lay out files.
func (s *Saver) Paths() *PathResolver { return s.paths }

// Serializer returns the codec used for stored blobs.
func (s *Saver) Serializer() serde.Serializer { return s.serde }

// begin opens a span for op and returns a func that closes it, records the
// operation metric and logs failures.
func (s *Saver) begin(ctx context.Context, op, threadID, ns string) (context.Context, func(error)) {
	done := observability.TimedOperation()
	ctx, span := s.spans.StartOperationSpan(ctx, op, threadID, ns)
	return ctx, func(err error) {
		s.spans.EndSpanWithError(span, err)
		s.metrics.RecordOperation(ctx, op, done(), err)
		if err != nil && !errors.Is(err, checkpoint.ErrMissingIdentifier) && !errors.Is(err, checkpoint.ErrInvalidIdentifier) {
			observability.LogOperationError(s.logger, op, threadID, err)
		}
	}
}

// listDirs lists subdirectories of dir. Listing failures yield an empty
// result; anything other than a missing folder is logged.
func (s *Saver) listDirs(dir string) []string {
	names, err := fsutil.ListDirs(dir)
	if err != nil {
		s.logListing(dir, err)
		return nil
	}
	return names
}

func (s *Saver) listFiles(dir string) []string {
	names, err := fsutil.ListFiles(dir)
	if err != nil {
		s.logListing(dir, err)
		return nil
	}
	return names
}

func (s *Saver) logListing(dir string, err error) {
	if !fsutil.IsNotExist(err) {
		observability.LogListingError(s.logger, dir, err)
	}
}

// validateSegment rejects ids that would escape or collide in the folder tree.
func validateSegment(op, field, value string) error {
	switch {
	case value == ".", value == "..":
		return checkpoint.InvalidIdentifier(op, field, value)
	case strings.ContainsAny(value, "/\\\x00"):
		return checkpoint.InvalidIdentifier(op, field, value)
	}
	return nil
}

func (s *Saver) validateThread(op, threadID string) error {
	if threadID == "" {
		return checkpoint.MissingIdentifier(op, "thread_id")
	}
	return validateSegment(op, "thread_id", threadID)
}

func (s *Saver) validateNamespace(op, ns string) error {
	if ns == DefaultNamespaceFolder {
		return checkpoint.InvalidIdentifier(op, "checkpoint_ns", ns)
	}
	return validateSegment(op, "checkpoint_ns", ns)
}

func (s *Saver) validateWriteKey(op, field, value string) error {
	if err := validateSegment(op, field, value); err != nil {
		return err
	}
	if strings.Contains(value, s.paths.Delimiter()) {
		return checkpoint.InvalidIdentifier(op, field, value)
	}
	return nil
}

func opError(op, path string, err error) error {
	return &checkpoint.OpError{Op: op, Path: path, Err: err}
}
