package checkpointfs

import (
	"context"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/fsutil"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
)

// DeleteThread removes the thread folder and everything under it.
// Deleting a thread that doesn't exist is a no-op.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) (err error) {
	ctx, done := s.begin(ctx, checkpoint.OpDeleteThread, threadID, "")
	defer func() { done(err) }()

	if err := s.validateThread(checkpoint.OpDeleteThread, threadID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.paths.ThreadPath(threadID)
	if err := fsutil.RemoveAll(path); err != nil {
		return opError("delete", path, err)
	}
	observability.LogThreadDeleted(s.logger, threadID)
	return nil
}
