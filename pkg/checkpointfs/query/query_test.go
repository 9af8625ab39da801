package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/query"
)

func TestRegistry_Register(t *testing.T) {
	r := query.NewRegistry()
	handler := func(context.Context, checkpoint.Config, any) (any, error) { return "ok", nil }

	require.NoError(t, r.Register("test", handler))

	got, ok := r.Get("test")
	require.True(t, ok)
	val, err := got(context.Background(), checkpoint.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := query.NewRegistry()
	handler := func(context.Context, checkpoint.Config, any) (any, error) { return nil, nil }

	assert.Error(t, r.Register("", handler))
	assert.Error(t, r.Register("test", nil))

	require.NoError(t, r.Register("test", handler))
	err := r.Register("test", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := query.NewRegistry()
	assert.Panics(t, func() { r.MustRegister("", nil) })
}

func TestRegistry_ListAndUnregister(t *testing.T) {
	r := query.NewRegistry()
	handler := func(context.Context, checkpoint.Config, any) (any, error) { return nil, nil }
	r.MustRegister("b", handler)
	r.MustRegister("a", handler)

	assert.Equal(t, []string{"a", "b"}, r.List())

	r.Unregister("a")
	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, r.List())
}

func TestExecutor_Execute(t *testing.T) {
	r := query.NewRegistry()
	r.MustRegister("echo", func(_ context.Context, target checkpoint.Config, args any) (any, error) {
		return target.ThreadID + ":" + args.(string), nil
	})
	exec := query.NewExecutor(r)
	ctx := context.Background()

	val, err := exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "t1:hi", val)

	_, err = exec.Execute(ctx, checkpoint.Config{}, "echo", "hi")
	assert.Error(t, err)

	_, err = exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, "", nil)
	assert.Error(t, err)

	_, err = exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, "missing", nil)
	assert.ErrorIs(t, err, query.ErrQueryNotFound)
}

// fixture stores three chained checkpoints in thread t1 and returns their ids.
func fixture(t *testing.T) (*query.Executor, []string) {
	t.Helper()
	ctx := context.Background()
	saver := checkpoint.NewMemorySaver()

	cfg := checkpoint.Config{ThreadID: "t1"}
	var ids []string
	for step := range 3 {
		cp := checkpoint.New(
			map[string]any{"count": step, "name": "run"},
			map[string]int64{"count": int64(step + 1)},
			nil,
		)
		next, err := saver.Put(ctx, cfg, cp, &checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: step})
		require.NoError(t, err)
		ids = append(ids, next.CheckpointID)
		cfg = next
	}

	require.NoError(t, saver.PutWrites(ctx, cfg, []checkpoint.Write{
		{Channel: "count", Value: 10},
	}, "task-a"))
	require.NoError(t, saver.PutWrites(ctx, cfg, []checkpoint.Write{
		{Channel: "name", Value: "b"},
	}, "task-b"))

	r := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(r, saver))
	return query.NewExecutor(r), ids
}

func TestBuiltins_Latest(t *testing.T) {
	exec, ids := fixture(t)

	val, err := exec.Execute(context.Background(), checkpoint.Config{ThreadID: "t1"}, query.QueryLatest, nil)
	require.NoError(t, err)

	s, ok := val.(query.Summary)
	require.True(t, ok)
	assert.Equal(t, ids[2], s.Config.CheckpointID)
	assert.Equal(t, ids[1], s.ParentID)
	assert.Equal(t, checkpoint.SourceLoop, s.Source)
	assert.Equal(t, 2, s.Step)
	assert.Equal(t, []string{"count", "name"}, s.Channels)
	assert.Equal(t, 2, s.PendingWrites)
	assert.False(t, s.Timestamp.IsZero())
}

func TestBuiltins_TargetNotFound(t *testing.T) {
	exec, _ := fixture(t)

	_, err := exec.Execute(context.Background(), checkpoint.Config{ThreadID: "nope"}, query.QueryLatest, nil)
	assert.ErrorIs(t, err, query.ErrTargetNotFound)
}

func TestBuiltins_Channels(t *testing.T) {
	exec, ids := fixture(t)
	target := checkpoint.Config{ThreadID: "t1", CheckpointID: ids[0]}

	val, err := exec.Execute(context.Background(), target, query.QueryChannels, nil)
	require.NoError(t, err)
	values := val.(map[string]any)
	assert.EqualValues(t, 0, values["count"])
	assert.Equal(t, "run", values["name"])
}

func TestBuiltins_Channel(t *testing.T) {
	exec, _ := fixture(t)
	ctx := context.Background()
	target := checkpoint.Config{ThreadID: "t1"}

	val, err := exec.Execute(ctx, target, query.QueryChannel, "count")
	require.NoError(t, err)
	assert.EqualValues(t, 2, val)

	_, err = exec.Execute(ctx, target, query.QueryChannel, nil)
	assert.ErrorContains(t, err, "channel name is required")

	_, err = exec.Execute(ctx, target, query.QueryChannel, "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestBuiltins_PendingWrites(t *testing.T) {
	exec, _ := fixture(t)
	ctx := context.Background()
	target := checkpoint.Config{ThreadID: "t1"}

	val, err := exec.Execute(ctx, target, query.QueryPendingWrites, nil)
	require.NoError(t, err)
	assert.Len(t, val.([]checkpoint.PendingWrite), 2)

	val, err = exec.Execute(ctx, target, query.QueryPendingWrites, "task-b")
	require.NoError(t, err)
	writes := val.([]checkpoint.PendingWrite)
	require.Len(t, writes, 1)
	assert.Equal(t, "task-b", writes[0].TaskID)
	assert.Equal(t, "name", writes[0].Channel)
}

func TestBuiltins_History(t *testing.T) {
	exec, ids := fixture(t)
	ctx := context.Background()

	val, err := exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, query.QueryHistory, nil)
	require.NoError(t, err)
	history := val.([]query.Summary)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].Config.CheckpointID)
	assert.Equal(t, ids[0], history[2].Config.CheckpointID)

	val, err = exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, query.QueryHistory, "1")
	require.NoError(t, err)
	assert.Len(t, val.([]query.Summary), 1)

	// Anchored at a checkpoint, history includes it and its predecessors.
	val, err = exec.Execute(ctx, checkpoint.Config{ThreadID: "t1", CheckpointID: ids[1]}, query.QueryHistory, nil)
	require.NoError(t, err)
	history = val.([]query.Summary)
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0].Config.CheckpointID)

	_, err = exec.Execute(ctx, checkpoint.Config{ThreadID: "t1"}, query.QueryHistory, "many")
	assert.Error(t, err)
}

func TestBuiltins_Lineage(t *testing.T) {
	exec, ids := fixture(t)

	val, err := exec.Execute(context.Background(), checkpoint.Config{ThreadID: "t1"}, query.QueryLineage, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, val)
}

func TestExecutor_ExecuteMultiple(t *testing.T) {
	exec, _ := fixture(t)

	results := exec.ExecuteMultiple(context.Background(), checkpoint.Config{ThreadID: "t1"}, map[string]any{
		query.QueryChannel: "missing",
		query.QueryLineage: nil,
		"unknown":          nil,
	})
	require.Len(t, results, 3)

	assert.Equal(t, query.QueryChannel, results[0].QueryName)
	assert.NotEmpty(t, results[0].Error)

	assert.Equal(t, query.QueryLineage, results[1].QueryName)
	assert.Empty(t, results[1].Error)
	assert.Len(t, results[1].Value, 3)

	assert.Equal(t, "unknown", results[2].QueryName)
	assert.Contains(t, results[2].Error, "query not found")
}

func TestRegisterBuiltins_Twice(t *testing.T) {
	r := query.NewRegistry()
	saver := checkpoint.NewMemorySaver()
	require.NoError(t, query.RegisterBuiltins(r, saver))
	assert.Error(t, query.RegisterBuiltins(r, saver))
}
