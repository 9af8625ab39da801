// Package checkpointfs stores graph checkpoints and pending writes as plain
// files.
//
// A Saver implements checkpoint.Saver on top of a folder tree:
//
//	<root>/<thread>/<ns or __DEFAULT_NS__>/<checkpoint id>/
//	    checkpoints/
//	        checkpoint    serialized checkpoint
//	        metadata      serialized metadata
//	        extra.json    {"parentCheckpointId": "..."}
//	    writes/
//	        <task>$$<channel>$$<slot>
//
// Checkpoint ids sort in creation order, so the latest checkpoint of a
// namespace is the folder with the greatest name.
//
// # Pending writes
//
// Each write occupies a slot: its position in the PutWrites batch, or a
// fixed negative index for the reserved channels (checkpoint.ErrorChannel
// and friends). Non-negative slots are first-write-wins: a retried task that
// submits the same writes again leaves the first values in place. Negative
// slots are overwritten on every call.
//
// The existence check and the write are separate steps. Two writers racing
// on the identical (task, channel, slot) may both write; writers on
// different slots never interfere.
//
// # Consistency
//
// Every blob is written to a temp file and renamed into place, so readers
// never see a torn blob. There is no snapshot isolation across blobs: a
// reader may observe a checkpoint whose writes are only partly stored.
//
// Directory listing failures are treated as empty results. Failures other
// than a missing folder are logged at WARN.
//
// # Usage
//
//	saver, err := checkpointfs.New(checkpointfs.Options{Root: "./state"})
//	if err != nil {
//	    return err
//	}
//	cfg := checkpoint.Config{ThreadID: "th_123"}
//	next, err := saver.Put(ctx, cfg, checkpoint.New(values, versions, nil), &checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 1})
//	err = saver.PutWrites(ctx, next, []checkpoint.Write{{Channel: "foo", Value: "foo1"}}, "task_1")
//	tuple, err := saver.GetTuple(ctx, checkpoint.Config{ThreadID: "th_123"})
//	for tuple, err := range saver.List(ctx, checkpoint.Selector{ThreadID: "th_123"}, checkpoint.WithLimit(10)) {
//	    ...
//	}
package checkpointfs
