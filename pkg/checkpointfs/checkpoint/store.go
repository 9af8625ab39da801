// Package checkpoint defines the checkpoint data model and the Saver contract
// shared by every storage backend.
package checkpoint

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/filter"
)

// Operation names used in errors, logs, metrics and spans.
const (
	OpPut          = "put"
	OpPutWrites    = "put_writes"
	OpGetTuple     = "get_tuple"
	OpList         = "list"
	OpDeleteThread = "delete_thread"
)

// Saver persists checkpoints and pending writes.
// Implementations must be safe for concurrent use.
type Saver interface {
	// Put stores a checkpoint and its metadata. cfg.CheckpointID is the
	// parent checkpoint id (empty for a root checkpoint).
	// Returns the config addressing the stored checkpoint.
	Put(ctx context.Context, cfg Config, cp *Checkpoint, md *Metadata) (Config, error)

	// PutWrites stages writes from one task against cfg.CheckpointID.
	// Non-reserved slots follow first-write-wins.
	PutWrites(ctx context.Context, cfg Config, writes []Write, taskID string) error

	// GetTuple loads the checkpoint addressed by cfg, or the latest one in
	// the namespace when cfg.CheckpointID is empty.
	// Returns nil (not an error) if nothing is stored.
	GetTuple(ctx context.Context, cfg Config) (*Tuple, error)

	// List yields checkpoints newest-first within each namespace.
	// Every range over the result performs a fresh traversal.
	List(ctx context.Context, sel Selector, opts ...ListOption) iter.Seq2[*Tuple, error]

	// DeleteThread removes everything stored for a thread.
	// Returns nil if the thread doesn't exist.
	DeleteThread(ctx context.Context, threadID string) error
}

// ListOptions holds resolved List options. Build it with ResolveListOptions.
type ListOptions struct {
	// Before keeps only checkpoint ids strictly less than it.
	Before string
	// Limit caps results per namespace. Negative means no limit.
	Limit int
	// Filter requires each metadata field to equal the given value.
	Filter map[string]any
	// Where is a CEL expression evaluated against each tuple.
	Where string
}

// ListOption configures List.
type ListOption func(*ListOptions)

// WithBefore excludes checkpoints whose id is >= checkpointID.
func WithBefore(checkpointID string) ListOption {
	return func(o *ListOptions) {
		o.Before = checkpointID
	}
}

// WithLimit caps the number of checkpoints returned per namespace.
// A limit of 0 returns nothing; a negative limit removes the cap.
func WithLimit(n int) ListOption {
	return func(o *ListOptions) {
		o.Limit = n
	}
}

// WithFilter requires metadata fields to equal the given values.
func WithFilter(fields map[string]any) ListOption {
	return func(o *ListOptions) {
		if o.Filter == nil {
			o.Filter = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			o.Filter[k] = v
		}
	}
}

// WithWhere adds a CEL predicate, for example `metadata.step > 1`.
func WithWhere(expr string) ListOption {
	return func(o *ListOptions) {
		o.Where = expr
	}
}

// ResolveListOptions applies opts over the defaults (no limit).
func ResolveListOptions(opts ...ListOption) ListOptions {
	o := ListOptions{Limit: -1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Matcher compiles the filter and where expression into a matcher.
func (o ListOptions) Matcher() (*filter.Matcher, error) {
	return filter.Compile(o.Filter, o.Where)
}

// SelectIDs orders ids newest-first and applies, in order, the exact id
// match, the before bound and the limit.
func SelectIDs(ids []string, exact string, o ListOptions) []string {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b string) int { return strings.Compare(b, a) })

	selected := sorted[:0]
	for _, id := range sorted {
		if exact != "" && id != exact {
			continue
		}
		if o.Before != "" && id >= o.Before {
			continue
		}
		selected = append(selected, id)
	}
	if o.Limit >= 0 && len(selected) > o.Limit {
		selected = selected[:o.Limit]
	}
	return selected
}

// Match reports whether a loaded tuple satisfies the matcher.
func Match(m *filter.Matcher, t *Tuple) bool {
	if t == nil {
		return false
	}
	return m.Match(filter.Target{
		ThreadID:     t.Config.ThreadID,
		Namespace:    t.Config.Namespace,
		CheckpointID: t.Config.CheckpointID,
		Metadata:     t.Metadata.Fields(),
	})
}
