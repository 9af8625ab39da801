package checkpointfs

import (
	"context"
	"iter"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

// List yields stored checkpoints matching sel and opts.
//
// Threads come from sel.ThreadID or, when empty, every folder under the
// root. Threads and namespaces are visited in directory order; within a
// namespace checkpoints are yielded newest first. The before bound, the
// limit and the exact id apply per namespace before tuples are loaded;
// metadata filters apply after.
//
// Each range over the returned sequence lists directories afresh. A load
// failure is yielded as an error and iteration continues if the consumer
// keeps ranging.
func (s *Saver) List(ctx context.Context, sel checkpoint.Selector, opts ...checkpoint.ListOption) iter.Seq2[*checkpoint.Tuple, error] {
	o := checkpoint.ResolveListOptions(opts...)

	return func(yield func(*checkpoint.Tuple, error) bool) {
		ns := ""
		if sel.Namespace != nil {
			ns = *sel.Namespace
		}
		ctx, done := s.begin(ctx, checkpoint.OpList, sel.ThreadID, ns)
		var err error
		defer func() { done(err) }()

		if err = s.validateSelector(sel); err != nil {
			yield(nil, err)
			return
		}
		matcher, err := o.Matcher()
		if err != nil {
			yield(nil, err)
			return
		}

		threads := []string{sel.ThreadID}
		if sel.ThreadID == "" {
			threads = s.listDirs(s.paths.Root())
		}

		for _, threadID := range threads {
			for _, folder := range s.listDirs(s.paths.ThreadPath(threadID)) {
				if sel.Namespace != nil && folder != s.paths.NamespaceFolder(*sel.Namespace) {
					continue
				}
				nsName := s.paths.NamespaceFromFolder(folder)
				ids := checkpoint.SelectIDs(s.listDirs(s.paths.NamespacePath(threadID, nsName)), sel.CheckpointID, o)

				for _, id := range ids {
					if err = ctx.Err(); err != nil {
						yield(nil, err)
						return
					}
					tuple, loadErr := s.load(ctx, threadID, nsName, id)
					if loadErr != nil {
						err = loadErr
						if !yield(nil, loadErr) {
							return
						}
						continue
					}
					if tuple == nil || !checkpoint.Match(matcher, tuple) {
						continue
					}
					if !yield(tuple, nil) {
						return
					}
				}
			}
		}
	}
}

func (s *Saver) validateSelector(sel checkpoint.Selector) error {
	if err := validateSegment(checkpoint.OpList, "thread_id", sel.ThreadID); err != nil {
		return err
	}
	if sel.Namespace != nil {
		if err := s.validateNamespace(checkpoint.OpList, *sel.Namespace); err != nil {
			return err
		}
	}
	return validateSegment(checkpoint.OpList, "checkpoint_id", sel.CheckpointID)
}
