package checkpoint

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

// MemorySaver is an in-memory Saver for testing.
// Data is lost when the process exits. Values are stored encoded, so
// loaded values have the same shape as from the file store.
type MemorySaver struct {
	mu      sync.RWMutex
	codec   serde.Serializer
	threads map[string]map[string]map[string]*memoryEntry // thread -> ns -> checkpoint id
	closed  bool
}

type memoryEntry struct {
	checkpoint []byte
	metadata   []byte
	parentID   string
	stored     bool
	writes     map[slotKey][]byte
}

type slotKey struct {
	taskID  string
	channel string
	slot    int
}

var _ Saver = (*MemorySaver)(nil)

// NewMemorySaver creates an empty in-memory saver using JSON encoding.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{
		codec:   serde.JSON{},
		threads: make(map[string]map[string]map[string]*memoryEntry),
	}
}

// entry returns the entry for a key, creating it. Caller holds the write lock.
func (m *MemorySaver) entry(threadID, ns, id string) *memoryEntry {
	thread := m.threads[threadID]
	if thread == nil {
		thread = make(map[string]map[string]*memoryEntry)
		m.threads[threadID] = thread
	}
	entries := thread[ns]
	if entries == nil {
		entries = make(map[string]*memoryEntry)
		thread[ns] = entries
	}
	e := entries[id]
	if e == nil {
		e = &memoryEntry{writes: make(map[slotKey][]byte)}
		entries[id] = e
	}
	return e
}

// Put implements Saver.
func (m *MemorySaver) Put(ctx context.Context, cfg Config, cp *Checkpoint, md *Metadata) (Config, error) {
	body, meta, err := encodeCheckpoint(m.codec, cfg, cp, md)
	if err != nil {
		return Config{}, err
	}
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Config{}, ErrStoreClosed
	}

	e := m.entry(cfg.ThreadID, cfg.Namespace, cp.ID)
	e.checkpoint = body
	e.metadata = meta
	e.parentID = cfg.CheckpointID
	e.stored = true

	return cfg.WithCheckpointID(cp.ID), nil
}

// PutWrites implements Saver.
func (m *MemorySaver) PutWrites(ctx context.Context, cfg Config, writes []Write, taskID string) error {
	encoded, err := encodeWrites(m.codec, cfg, writes, taskID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	e := m.entry(cfg.ThreadID, cfg.Namespace, cfg.CheckpointID)
	for _, w := range encoded {
		key := slotKey{taskID: w.TaskID, channel: w.Channel, slot: w.Slot}
		if _, taken := e.writes[key]; taken && w.Slot >= 0 {
			continue
		}
		e.writes[key] = w.Value
	}
	return nil
}

// GetTuple implements Saver.
func (m *MemorySaver) GetTuple(ctx context.Context, cfg Config) (*Tuple, error) {
	if cfg.ThreadID == "" {
		return nil, MissingIdentifier(OpGetTuple, "thread_id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	id := cfg.CheckpointID
	if id == "" {
		ids := slices.Collect(maps.Keys(m.threads[cfg.ThreadID][cfg.Namespace]))
		if len(ids) == 0 {
			m.mu.RUnlock()
			return nil, nil
		}
		id = slices.Max(ids)
	}
	enc := m.snapshot(cfg.ThreadID, cfg.Namespace, id)
	m.mu.RUnlock()

	if enc == nil {
		return nil, nil
	}
	return enc.decode(m.codec)
}

// snapshot copies out one stored checkpoint. Caller holds the read lock.
func (m *MemorySaver) snapshot(threadID, ns, id string) *encodedTuple {
	e := m.threads[threadID][ns][id]
	if e == nil || !e.stored {
		return nil
	}
	enc := &encodedTuple{
		Config:     Config{ThreadID: threadID, Namespace: ns, CheckpointID: id},
		Checkpoint: e.checkpoint,
		Metadata:   e.metadata,
		ParentID:   e.parentID,
	}
	for key, value := range e.writes {
		enc.Writes = append(enc.Writes, encodedWrite{TaskID: key.taskID, Channel: key.channel, Slot: key.slot, Value: value})
	}
	return enc
}

// List implements Saver. Threads and namespaces are visited in name order.
func (m *MemorySaver) List(ctx context.Context, sel Selector, opts ...ListOption) iter.Seq2[*Tuple, error] {
	o := ResolveListOptions(opts...)

	return func(yield func(*Tuple, error) bool) {
		matcher, err := o.Matcher()
		if err != nil {
			yield(nil, err)
			return
		}

		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			yield(nil, ErrStoreClosed)
			return
		}
		var batch []*encodedTuple
		for _, threadID := range slices.Sorted(maps.Keys(m.threads)) {
			if sel.ThreadID != "" && threadID != sel.ThreadID {
				continue
			}
			namespaces := m.threads[threadID]
			for _, ns := range slices.Sorted(maps.Keys(namespaces)) {
				if sel.Namespace != nil && ns != *sel.Namespace {
					continue
				}
				ids := slices.Collect(maps.Keys(namespaces[ns]))
				for _, id := range SelectIDs(ids, sel.CheckpointID, o) {
					if enc := m.snapshot(threadID, ns, id); enc != nil {
						batch = append(batch, enc)
					}
				}
			}
		}
		m.mu.RUnlock()

		for _, enc := range batch {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			t, err := enc.decode(m.codec)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !Match(matcher, t) {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// DeleteThread implements Saver.
func (m *MemorySaver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return MissingIdentifier(OpDeleteThread, "thread_id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.threads, threadID)
	return nil
}

// Close releases all stored data. Further calls fail with ErrStoreClosed.
func (m *MemorySaver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.threads = nil
	return nil
}

// Len returns the number of stored checkpoints across all threads.
// Useful for testing.
func (m *MemorySaver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, namespaces := range m.threads {
		for _, entries := range namespaces {
			for _, e := range entries {
				if e.stored {
					count++
				}
			}
		}
	}
	return count
}
