// Package query provides read-only inspection queries over a checkpoint saver.
//
// Queries never modify stored state. Each query is addressed at a
// checkpoint.Config: a thread, a namespace and optionally a checkpoint id
// (empty means the latest checkpoint of the namespace).
//
// Common use cases:
//   - Summarize the latest checkpoint of a thread
//   - Read one channel value
//   - Inspect pending writes staged against a checkpoint
//   - Walk a checkpoint's ancestry
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

// Handler executes a query and returns a result.
// Handlers must not modify stored state.
type Handler func(ctx context.Context, target checkpoint.Config, args any) (any, error)

// Registry manages query handlers by query name.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new query registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a query name.
func (r *Registry) Register(queryName string, handler Handler) error {
	if queryName == "" {
		return errors.New("query name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[queryName]; exists {
		return fmt.Errorf("handler for query %q already registered", queryName)
	}

	r.handlers[queryName] = handler
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(queryName string, handler Handler) {
	if err := r.Register(queryName, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler for a query name.
func (r *Registry) Get(queryName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[queryName]
	return handler, exists
}

// List returns all registered query names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a handler for a query name.
func (r *Registry) Unregister(queryName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, queryName)
}

// ErrQueryNotFound is returned when a query handler doesn't exist.
var ErrQueryNotFound = errors.New("query not found")

// ErrTargetNotFound is returned when no checkpoint matches the target.
var ErrTargetNotFound = errors.New("checkpoint not found")

// Executor runs queries against targets.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a new query executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs a query against a target.
func (e *Executor) Execute(ctx context.Context, target checkpoint.Config, queryName string, args any) (any, error) {
	if target.ThreadID == "" {
		return nil, errors.New("thread ID is required")
	}
	if queryName == "" {
		return nil, errors.New("query name is required")
	}

	handler, exists := e.registry.Get(queryName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryName)
	}

	return handler(ctx, target, args)
}

// Result wraps a query result with metadata.
type Result struct {
	// QueryName is the query that was executed.
	QueryName string `json:"query_name"`

	// Target is the checkpoint that was queried.
	Target checkpoint.Config `json:"target"`

	// Value is the query result.
	Value any `json:"value"`

	// Error contains error details if the query failed.
	Error string `json:"error,omitempty"`
}

// ExecuteMultiple runs multiple queries against a target, in query name
// order. Returns results for all queries, including any that failed.
func (e *Executor) ExecuteMultiple(ctx context.Context, target checkpoint.Config, queries map[string]any) []Result {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(queries))
	for _, queryName := range names {
		result := Result{
			QueryName: queryName,
			Target:    target,
		}

		value, err := e.Execute(ctx, target, queryName, queries[queryName])
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Value = value
		}

		results = append(results, result)
	}

	return results
}

// Built-in query names.
const (
	QueryLatest        = "latest"         // Summary of the target checkpoint
	QueryChannels      = "channels"       // All channel values
	QueryChannel       = "channel"        // One channel value; args is the channel name
	QueryPendingWrites = "pending_writes" // Pending writes; args optionally filters by task id
	QueryHistory       = "history"        // Summaries newest first; args optionally limits
	QueryLineage       = "lineage"        // Checkpoint ids from the target back to the root
)

// Summary describes a checkpoint without its channel values.
type Summary struct {
	Config        checkpoint.Config `json:"config"`
	ParentID      string            `json:"parent_id,omitempty"`
	Source        string            `json:"source"`
	Step          int               `json:"step"`
	Timestamp     time.Time         `json:"ts"`
	Channels      []string          `json:"channels"`
	PendingWrites int               `json:"pending_writes"`
}

// Summarize builds a Summary from a loaded tuple.
func Summarize(t *checkpoint.Tuple) Summary {
	s := Summary{
		Config:        t.Config,
		PendingWrites: len(t.PendingWrites),
	}
	if t.ParentConfig != nil {
		s.ParentID = t.ParentConfig.CheckpointID
	}
	if t.Metadata != nil {
		s.Source = t.Metadata.Source
		s.Step = t.Metadata.Step
	}
	if t.Checkpoint != nil {
		s.Timestamp = t.Checkpoint.TS
		s.Channels = make([]string, 0, len(t.Checkpoint.ChannelValues))
		for name := range t.Checkpoint.ChannelValues {
			s.Channels = append(s.Channels, name)
		}
		sort.Strings(s.Channels)
	}
	return s
}

// maxLineage bounds ancestry walks so a corrupt parent cycle terminates.
const maxLineage = 10_000

// RegisterBuiltins registers the standard query handlers backed by saver.
func RegisterBuiltins(registry *Registry, saver checkpoint.Saver) error {
	load := func(ctx context.Context, target checkpoint.Config) (*checkpoint.Tuple, error) {
		tuple, err := saver.GetTuple(ctx, target)
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			return nil, fmt.Errorf("%w: thread %q ns %q id %q", ErrTargetNotFound, target.ThreadID, target.Namespace, target.CheckpointID)
		}
		return tuple, nil
	}

	builtins := map[string]Handler{
		QueryLatest: func(ctx context.Context, target checkpoint.Config, _ any) (any, error) {
			tuple, err := load(ctx, target)
			if err != nil {
				return nil, err
			}
			return Summarize(tuple), nil
		},
		QueryChannels: func(ctx context.Context, target checkpoint.Config, _ any) (any, error) {
			tuple, err := load(ctx, target)
			if err != nil {
				return nil, err
			}
			return tuple.Checkpoint.ChannelValues, nil
		},
		QueryChannel: func(ctx context.Context, target checkpoint.Config, args any) (any, error) {
			name, ok := args.(string)
			if !ok || name == "" {
				return nil, errors.New("channel name is required")
			}
			tuple, err := load(ctx, target)
			if err != nil {
				return nil, err
			}
			val, exists := tuple.Checkpoint.ChannelValues[name]
			if !exists {
				return nil, fmt.Errorf("channel %q not found", name)
			}
			return val, nil
		},
		QueryPendingWrites: func(ctx context.Context, target checkpoint.Config, args any) (any, error) {
			tuple, err := load(ctx, target)
			if err != nil {
				return nil, err
			}
			taskID, _ := args.(string)
			if taskID == "" {
				return tuple.PendingWrites, nil
			}
			return slices.DeleteFunc(slices.Clone(tuple.PendingWrites), func(w checkpoint.PendingWrite) bool {
				return w.TaskID != taskID
			}), nil
		},
		QueryHistory: func(ctx context.Context, target checkpoint.Config, args any) (any, error) {
			limit, err := intArg(args, -1)
			if err != nil {
				return nil, err
			}
			opts := []checkpoint.ListOption{checkpoint.WithLimit(limit)}
			if target.CheckpointID != "" {
				// History up to and including the target.
				opts = append(opts, checkpoint.WithBefore(target.CheckpointID+"\x00"))
			}
			sel := target.WithCheckpointID("").Selector()

			summaries := []Summary{}
			for tuple, err := range saver.List(ctx, sel, opts...) {
				if err != nil {
					return nil, err
				}
				summaries = append(summaries, Summarize(tuple))
			}
			return summaries, nil
		},
		QueryLineage: func(ctx context.Context, target checkpoint.Config, _ any) (any, error) {
			tuple, err := load(ctx, target)
			if err != nil {
				return nil, err
			}
			ids := []string{tuple.Config.CheckpointID}
			for tuple.ParentConfig != nil && len(ids) < maxLineage {
				parent, err := saver.GetTuple(ctx, *tuple.ParentConfig)
				if err != nil {
					return nil, err
				}
				if parent == nil {
					// Parent was never stored; report the dangling id and stop.
					ids = append(ids, tuple.ParentConfig.CheckpointID)
					break
				}
				tuple = parent
				ids = append(ids, tuple.Config.CheckpointID)
			}
			return ids, nil
		},
	}

	for name, handler := range builtins {
		if err := registry.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register builtin query %q: %w", name, err)
		}
	}

	return nil
}

// intArg reads an optional integer argument given as a number or a string.
func intArg(args any, defaultVal int) (int, error) {
	switch v := args.(type) {
	case nil:
		return defaultVal, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if v == "" {
			return defaultVal, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid limit %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid limit of type %T", args)
	}
}
