package checkpointfs

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/fsutil"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
)

// GetTuple loads the checkpoint named by cfg.CheckpointID, or the latest
// checkpoint of the namespace when it is empty. The latest checkpoint is the
// one with the greatest id. Returns nil, nil when there is nothing stored.
func (s *Saver) GetTuple(ctx context.Context, cfg checkpoint.Config) (_ *checkpoint.Tuple, err error) {
	ctx, done := s.begin(ctx, checkpoint.OpGetTuple, cfg.ThreadID, cfg.Namespace)
	defer func() { done(err) }()

	if err := s.validateThread(checkpoint.OpGetTuple, cfg.ThreadID); err != nil {
		return nil, err
	}
	if err := s.validateNamespace(checkpoint.OpGetTuple, cfg.Namespace); err != nil {
		return nil, err
	}
	if err := validateSegment(checkpoint.OpGetTuple, "checkpoint_id", cfg.CheckpointID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := cfg.CheckpointID
	if id == "" {
		nsPath := s.paths.NamespacePath(cfg.ThreadID, cfg.Namespace)
		if err := fsutil.EnsureDir(nsPath); err != nil {
			return nil, opError("mkdir", nsPath, err)
		}
		ids := s.listDirs(nsPath)
		if len(ids) == 0 {
			return nil, nil
		}
		id = slices.Max(ids)
	}
	return s.load(ctx, cfg.ThreadID, cfg.Namespace, id)
}

// load reads every artifact of one checkpoint. Each artifact is read
// independently, so a concurrent PutWrites may be partially visible.
func (s *Saver) load(ctx context.Context, threadID, ns, id string) (*checkpoint.Tuple, error) {
	dir := s.paths.CheckpointsPath(threadID, ns, id)
	found, err := fsutil.Exists(dir)
	if err != nil {
		return nil, opError("stat", dir, err)
	}
	if !found {
		return nil, nil
	}

	var link parentLink
	path := filepath.Join(dir, extraFile)
	if err := fsutil.ReadJSON(path, &link); err != nil {
		return nil, opError("read", path, err)
	}

	cp := &checkpoint.Checkpoint{}
	if err := s.readBlob(filepath.Join(dir, checkpointFile), cp); err != nil {
		return nil, err
	}
	md := &checkpoint.Metadata{}
	if err := s.readBlob(filepath.Join(dir, metadataFile), md); err != nil {
		return nil, err
	}

	writes, err := s.loadWrites(ctx, s.paths.WritesPath(threadID, ns, id))
	if err != nil {
		return nil, err
	}

	tuple := &checkpoint.Tuple{
		Config:        checkpoint.Config{ThreadID: threadID, Namespace: ns, CheckpointID: id},
		Checkpoint:    cp,
		Metadata:      md,
		PendingWrites: writes,
	}
	if link.ParentCheckpointID != "" {
		tuple.ParentConfig = &checkpoint.Config{
			ThreadID:     threadID,
			Namespace:    ns,
			CheckpointID: link.ParentCheckpointID,
		}
	}
	return tuple, nil
}

func (s *Saver) readBlob(path string, v any) error {
	data, err := fsutil.ReadBinary(path)
	if err != nil {
		return opError("read", path, err)
	}
	if err := s.serde.Loads(data, v); err != nil {
		return opError("decode", path, err)
	}
	return nil
}

type storedWrite struct {
	slot  int
	write checkpoint.PendingWrite
}

// loadWrites decodes every slot file in dir, ordered by task id then slot.
// Files whose names don't decode are skipped.
func (s *Saver) loadWrites(ctx context.Context, dir string) ([]checkpoint.PendingWrite, error) {
	names := s.listFiles(dir)
	if len(names) == 0 {
		return nil, nil
	}

	stored := make([]storedWrite, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		taskID, channel, slot, err := s.paths.ParseWriteFileName(name)
		if err != nil {
			observability.LogSkippedWriteFile(s.logger, dir, name, err)
			continue
		}
		var value any
		if err := s.readBlob(filepath.Join(dir, name), &value); err != nil {
			return nil, err
		}
		stored = append(stored, storedWrite{
			slot:  slot,
			write: checkpoint.PendingWrite{TaskID: taskID, Channel: channel, Value: value},
		})
	}

	slices.SortFunc(stored, func(a, b storedWrite) int {
		return cmp.Or(cmp.Compare(a.write.TaskID, b.write.TaskID), cmp.Compare(a.slot, b.slot))
	})
	writes := make([]checkpoint.PendingWrite, len(stored))
	for i, sw := range stored {
		writes[i] = sw.write
	}
	return writes, nil
}
