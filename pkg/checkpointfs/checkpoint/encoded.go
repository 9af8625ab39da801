package checkpoint

import (
	"cmp"
	"slices"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

// encodedWrite is a pending write as held by the in-process and SQL backends.
type encodedWrite struct {
	TaskID  string
	Channel string
	Slot    int
	Value   []byte
}

// encodedTuple is a checkpoint and everything stored alongside it, still
// in encoded form.
type encodedTuple struct {
	Config     Config
	Checkpoint []byte
	Metadata   []byte
	ParentID   string
	Writes     []encodedWrite
}

func (e *encodedTuple) decode(codec serde.Serializer) (*Tuple, error) {
	cp := &Checkpoint{}
	if err := codec.Loads(e.Checkpoint, cp); err != nil {
		return nil, &OpError{Op: "decode", Path: "checkpoint " + e.Config.CheckpointID, Err: err}
	}
	md := &Metadata{}
	if err := codec.Loads(e.Metadata, md); err != nil {
		return nil, &OpError{Op: "decode", Path: "metadata " + e.Config.CheckpointID, Err: err}
	}

	writes := slices.Clone(e.Writes)
	slices.SortFunc(writes, func(a, b encodedWrite) int {
		return cmp.Or(cmp.Compare(a.TaskID, b.TaskID), cmp.Compare(a.Slot, b.Slot))
	})

	var pending []PendingWrite
	for _, w := range writes {
		var value any
		if err := codec.Loads(w.Value, &value); err != nil {
			return nil, &OpError{Op: "decode", Path: "write " + w.TaskID + "/" + w.Channel, Err: err}
		}
		pending = append(pending, PendingWrite{TaskID: w.TaskID, Channel: w.Channel, Value: value})
	}

	t := &Tuple{
		Config:        e.Config,
		Checkpoint:    cp,
		Metadata:      md,
		PendingWrites: pending,
	}
	if e.ParentID != "" {
		parent := e.Config.WithCheckpointID(e.ParentID)
		t.ParentConfig = &parent
	}
	return t, nil
}

// encodeCheckpoint validates Put arguments shared by every backend and
// encodes the checkpoint and metadata.
func encodeCheckpoint(codec serde.Serializer, cfg Config, cp *Checkpoint, md *Metadata) ([]byte, []byte, error) {
	if cfg.ThreadID == "" {
		return nil, nil, MissingIdentifier(OpPut, "thread_id")
	}
	if cp == nil {
		return nil, nil, ErrNilCheckpoint
	}
	if cp.ID == "" {
		return nil, nil, MissingIdentifier(OpPut, "checkpoint.id")
	}
	if md == nil {
		md = &Metadata{}
	}
	body, err := codec.Dumps(cp)
	if err != nil {
		return nil, nil, &OpError{Op: "encode", Path: "checkpoint " + cp.ID, Err: err}
	}
	meta, err := codec.Dumps(md)
	if err != nil {
		return nil, nil, &OpError{Op: "encode", Path: "metadata " + cp.ID, Err: err}
	}
	return body, meta, nil
}

// encodeWrites validates PutWrites arguments and assigns slots. Later
// writes to the same reserved slot replace earlier ones in the batch.
func encodeWrites(codec serde.Serializer, cfg Config, writes []Write, taskID string) ([]encodedWrite, error) {
	if cfg.ThreadID == "" {
		return nil, MissingIdentifier(OpPutWrites, "thread_id")
	}
	if cfg.CheckpointID == "" {
		return nil, MissingIdentifier(OpPutWrites, "checkpoint_id")
	}

	out := make([]encodedWrite, 0, len(writes))
	reserved := make(map[int]int)
	for i, w := range writes {
		value, err := codec.Dumps(w.Value)
		if err != nil {
			return nil, &OpError{Op: "encode", Path: "write " + taskID + "/" + w.Channel, Err: err}
		}
		ew := encodedWrite{TaskID: taskID, Channel: w.Channel, Slot: SlotIndex(w.Channel, i), Value: value}
		if ew.Slot < 0 {
			if at, ok := reserved[ew.Slot]; ok {
				out[at] = ew
				continue
			}
			reserved[ew.Slot] = len(out)
		}
		out = append(out, ew)
	}
	return out, nil
}
