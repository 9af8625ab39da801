package checkpointfs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/fsutil"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
)

// parentLink is the extra.json side record.
type parentLink struct {
	ParentCheckpointID string `json:"parentCheckpointId,omitempty"`
}

// Put writes the checkpoint body, its metadata and the parent link under
// the checkpoint's folder, creating the folder tree as needed.
// cfg.CheckpointID is recorded as the parent. Putting the same checkpoint
// twice rewrites identical bytes.
func (s *Saver) Put(ctx context.Context, cfg checkpoint.Config, cp *checkpoint.Checkpoint, md *checkpoint.Metadata) (_ checkpoint.Config, err error) {
	ctx, done := s.begin(ctx, checkpoint.OpPut, cfg.ThreadID, cfg.Namespace)
	defer func() { done(err) }()

	if err := s.validateThread(checkpoint.OpPut, cfg.ThreadID); err != nil {
		return checkpoint.Config{}, err
	}
	if err := s.validateNamespace(checkpoint.OpPut, cfg.Namespace); err != nil {
		return checkpoint.Config{}, err
	}
	if cp == nil {
		return checkpoint.Config{}, checkpoint.ErrNilCheckpoint
	}
	if cp.ID == "" {
		return checkpoint.Config{}, checkpoint.MissingIdentifier(checkpoint.OpPut, "checkpoint.id")
	}
	if err := validateSegment(checkpoint.OpPut, "checkpoint.id", cp.ID); err != nil {
		return checkpoint.Config{}, err
	}
	if md == nil {
		md = &checkpoint.Metadata{}
	}
	if err := ctx.Err(); err != nil {
		return checkpoint.Config{}, err
	}

	body, err := s.serde.Dumps(cp)
	if err != nil {
		return checkpoint.Config{}, opError("encode", "checkpoint "+cp.ID, err)
	}
	meta, err := s.serde.Dumps(md)
	if err != nil {
		return checkpoint.Config{}, opError("encode", "metadata "+cp.ID, err)
	}

	dir := s.paths.CheckpointsPath(cfg.ThreadID, cfg.Namespace, cp.ID)
	if err := fsutil.EnsureDir(dir); err != nil {
		return checkpoint.Config{}, opError("mkdir", dir, err)
	}

	path := filepath.Join(dir, checkpointFile)
	if err := fsutil.WriteBinary(path, body); err != nil {
		return checkpoint.Config{}, opError("write", path, err)
	}
	path = filepath.Join(dir, metadataFile)
	if err := fsutil.WriteBinary(path, meta); err != nil {
		return checkpoint.Config{}, opError("write", path, err)
	}
	path = filepath.Join(dir, extraFile)
	if err := fsutil.WriteJSON(path, parentLink{ParentCheckpointID: cfg.CheckpointID}); err != nil {
		return checkpoint.Config{}, opError("write", path, err)
	}

	s.metrics.RecordCheckpointSize(ctx, int64(len(body)))
	observability.LogPut(s.logger, cfg.ThreadID, cfg.Namespace, cp.ID, len(body))

	return checkpoint.Config{
		ThreadID:     cfg.ThreadID,
		Namespace:    cfg.Namespace,
		CheckpointID: cp.ID,
	}, nil
}

type slotWrite struct {
	channel string
	slot    int
	value   any
}

// PutWrites stores each write in its own slot file under the writes folder
// of cfg.CheckpointID. Non-negative slots are first-write-wins: a slot that
// already has a file is left untouched. Reserved negative slots are always
// overwritten; within one batch the last write to such a slot wins.
// Slots are written concurrently.
func (s *Saver) PutWrites(ctx context.Context, cfg checkpoint.Config, writes []checkpoint.Write, taskID string) (err error) {
	ctx, done := s.begin(ctx, checkpoint.OpPutWrites, cfg.ThreadID, cfg.Namespace)
	defer func() { done(err) }()

	if err := s.validateThread(checkpoint.OpPutWrites, cfg.ThreadID); err != nil {
		return err
	}
	if cfg.CheckpointID == "" {
		return checkpoint.MissingIdentifier(checkpoint.OpPutWrites, "checkpoint_id")
	}
	if err := validateSegment(checkpoint.OpPutWrites, "checkpoint_id", cfg.CheckpointID); err != nil {
		return err
	}
	if err := s.validateNamespace(checkpoint.OpPutWrites, cfg.Namespace); err != nil {
		return err
	}
	if err := s.validateWriteKey(checkpoint.OpPutWrites, "task_id", taskID); err != nil {
		return err
	}
	for _, w := range writes {
		if err := s.validateWriteKey(checkpoint.OpPutWrites, "channel", w.Channel); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := s.paths.WritesPath(cfg.ThreadID, cfg.Namespace, cfg.CheckpointID)
	if err := fsutil.EnsureDir(dir); err != nil {
		return opError("mkdir", dir, err)
	}

	batch := make([]slotWrite, 0, len(writes))
	reserved := make(map[int]int)
	for i, w := range writes {
		sw := slotWrite{channel: w.Channel, slot: checkpoint.SlotIndex(w.Channel, i), value: w.Value}
		if sw.slot < 0 {
			if at, ok := reserved[sw.slot]; ok {
				batch[at] = sw
				continue
			}
			reserved[sw.slot] = len(batch)
		}
		batch = append(batch, sw)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		stored    atomic.Int64
		discarded atomic.Int64
	)
	for _, sw := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := s.writeSlot(dir, taskID, sw)
			switch {
			case err != nil:
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			case wrote:
				stored.Add(1)
			default:
				discarded.Add(1)
				observability.LogWriteDiscarded(s.logger, cfg.CheckpointID, taskID, sw.channel, sw.slot)
			}
		}()
	}
	wg.Wait()

	s.metrics.RecordWrites(ctx, int(stored.Load()), int(discarded.Load()))
	observability.LogWrites(s.logger, cfg.CheckpointID, taskID, int(stored.Load()), int(discarded.Load()))
	return errors.Join(errs...)
}

// writeSlot stores one write. It reports false when the slot was already
// taken. The existence check and the write are not atomic together.
func (s *Saver) writeSlot(dir, taskID string, sw slotWrite) (bool, error) {
	path := filepath.Join(dir, s.paths.WriteFileName(taskID, sw.channel, sw.slot))
	if sw.slot >= 0 {
		taken, err := fsutil.Exists(path)
		if err != nil {
			return false, opError("stat", path, err)
		}
		if taken {
			return false, nil
		}
	}
	data, err := s.serde.Dumps(sw.value)
	if err != nil {
		return false, opError("encode", path, err)
	}
	if err := fsutil.WriteBinary(path, data); err != nil {
		return false, opError("write", path, err)
	}
	return true, nil
}
