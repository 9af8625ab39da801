package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteSaver persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteSaver struct {
	db     *sql.DB
	codec  serde.Serializer
	mu     sync.RWMutex
	closed bool
}

var _ Saver = (*SQLiteSaver)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT NOT NULL,
	checkpoint_ns TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	parent_checkpoint_id TEXT NOT NULL DEFAULT '',
	checkpoint BLOB NOT NULL,
	metadata BLOB NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id)
);
CREATE TABLE IF NOT EXISTS writes (
	thread_id TEXT NOT NULL,
	checkpoint_ns TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	idx INTEGER NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id, task_id, channel, idx)
);
`

// NewSQLiteSaver opens (and if needed creates) a SQLite checkpoint database.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
// codec may be nil, meaning JSON.
func NewSQLiteSaver(path string, codec serde.Serializer) (*SQLiteSaver, error) {
	if codec == nil {
		codec = serde.JSON{}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteSaver{db: db, codec: codec}, nil
}

// Put implements Saver.
func (s *SQLiteSaver) Put(ctx context.Context, cfg Config, cp *Checkpoint, md *Metadata) (Config, error) {
	body, meta, err := encodeCheckpoint(s.codec, cfg, cp, md)
	if err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Config{}, ErrStoreClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints
			(thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, checkpoint, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cfg.ThreadID, cfg.Namespace, cp.ID, cfg.CheckpointID, body, meta)
	if err != nil {
		return Config{}, fmt.Errorf("save checkpoint: %w", err)
	}
	return cfg.WithCheckpointID(cp.ID), nil
}

// PutWrites implements Saver. First-write-wins is enforced by the primary key.
func (s *SQLiteSaver) PutWrites(ctx context.Context, cfg Config, writes []Write, taskID string) error {
	encoded, err := encodeWrites(s.codec, cfg, writes, taskID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin writes: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, w := range encoded {
		verb := "INSERT OR IGNORE"
		if w.Slot < 0 {
			verb = "INSERT OR REPLACE"
		}
		_, err := tx.ExecContext(ctx, verb+` INTO writes
			(thread_id, checkpoint_ns, checkpoint_id, task_id, channel, idx, value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID, w.TaskID, w.Channel, w.Slot, w.Value)
		if err != nil {
			return fmt.Errorf("save write %s/%s: %w", w.TaskID, w.Channel, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit writes: %w", err)
	}
	return nil
}

// GetTuple implements Saver.
func (s *SQLiteSaver) GetTuple(ctx context.Context, cfg Config) (*Tuple, error) {
	if cfg.ThreadID == "" {
		return nil, MissingIdentifier(OpGetTuple, "thread_id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	id := cfg.CheckpointID
	if id == "" {
		var latest sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT MAX(checkpoint_id) FROM (
				SELECT checkpoint_id FROM checkpoints WHERE thread_id = ?1 AND checkpoint_ns = ?2
				UNION
				SELECT checkpoint_id FROM writes WHERE thread_id = ?1 AND checkpoint_ns = ?2
			)
		`, cfg.ThreadID, cfg.Namespace).Scan(&latest)
		if err != nil {
			return nil, fmt.Errorf("find latest checkpoint: %w", err)
		}
		if !latest.Valid {
			return nil, nil
		}
		id = latest.String
	}

	enc, err := s.load(ctx, cfg.ThreadID, cfg.Namespace, id)
	if err != nil || enc == nil {
		return nil, err
	}
	return enc.decode(s.codec)
}

// load reads one checkpoint and its writes. Caller holds the read lock.
func (s *SQLiteSaver) load(ctx context.Context, threadID, ns, id string) (*encodedTuple, error) {
	enc := &encodedTuple{Config: Config{ThreadID: threadID, Namespace: ns, CheckpointID: id}}

	err := s.db.QueryRowContext(ctx, `
		SELECT parent_checkpoint_id, checkpoint, metadata FROM checkpoints
		WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?
	`, threadID, ns, id).Scan(&enc.ParentID, &enc.Checkpoint, &enc.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, channel, idx, value FROM writes
		WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?
		ORDER BY task_id, idx
	`, threadID, ns, id)
	if err != nil {
		return nil, fmt.Errorf("load writes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w encodedWrite
		if err := rows.Scan(&w.TaskID, &w.Channel, &w.Slot, &w.Value); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		enc.Writes = append(enc.Writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writes: %w", err)
	}
	return enc, nil
}

type namespaceKey struct {
	threadID string
	ns       string
}

// ids returns checkpoint ids grouped by thread and namespace, in key order.
// Caller holds the read lock.
func (s *SQLiteSaver) ids(ctx context.Context, sel Selector) ([]namespaceKey, map[namespaceKey][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, checkpoint_ns, checkpoint_id FROM checkpoints WHERE ?1 = '' OR thread_id = ?1
		UNION
		SELECT thread_id, checkpoint_ns, checkpoint_id FROM writes WHERE ?1 = '' OR thread_id = ?1
		ORDER BY 1, 2
	`, sel.ThreadID)
	if err != nil {
		return nil, nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var order []namespaceKey
	groups := make(map[namespaceKey][]string)
	for rows.Next() {
		var key namespaceKey
		var id string
		if err := rows.Scan(&key.threadID, &key.ns, &id); err != nil {
			return nil, nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		if sel.Namespace != nil && key.ns != *sel.Namespace {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate checkpoint ids: %w", err)
	}
	return order, groups, nil
}

// List implements Saver. Threads and namespaces are visited in name order.
func (s *SQLiteSaver) List(ctx context.Context, sel Selector, opts ...ListOption) iter.Seq2[*Tuple, error] {
	o := ResolveListOptions(opts...)

	return func(yield func(*Tuple, error) bool) {
		matcher, err := o.Matcher()
		if err != nil {
			yield(nil, err)
			return
		}

		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield(nil, ErrStoreClosed)
			return
		}
		order, groups, err := s.ids(ctx, sel)
		s.mu.RUnlock()
		if err != nil {
			yield(nil, err)
			return
		}

		for _, key := range order {
			for _, id := range SelectIDs(groups[key], sel.CheckpointID, o) {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				t, err := s.loadTuple(ctx, key, id)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if t == nil || !Match(matcher, t) {
					continue
				}
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}

func (s *SQLiteSaver) loadTuple(ctx context.Context, key namespaceKey, id string) (*Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	enc, err := s.load(ctx, key.threadID, key.ns, id)
	if err != nil || enc == nil {
		return nil, err
	}
	return enc.decode(s.codec)
}

// DeleteThread implements Saver.
func (s *SQLiteSaver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return MissingIdentifier(OpDeleteThread, "thread_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"checkpoints", "writes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE thread_id = ?", threadID); err != nil {
			return fmt.Errorf("delete thread %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// Close implements io.Closer. Closing twice is a no-op.
func (s *SQLiteSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
