package checkpointfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/serde"
)

const (
	testThread = "th_123"
	testID     = "1f088b35-7f0d-6590-ffff-22262f298615"
)

func newTestSaver(t *testing.T, opts Options) *Saver {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func testCheckpoint(id string) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		V:  checkpoint.Version,
		ID: id,
		TS: time.Date(2025, 9, 3, 7, 28, 32, 524_000_000, time.UTC),
		ChannelValues: map[string]any{
			"foo": "foo1",
			"bar": []any{"bar1"},
		},
		ChannelVersions: map[string]int64{"foo": 1, "bar": 1},
		VersionsSeen:    map[string]map[string]int64{},
	}
}

func testMetadata() *checkpoint.Metadata {
	return &checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 1, Parents: map[string]string{}}
}

func TestNew_RejectsSeparatorDelimiter(t *testing.T) {
	_, err := New(Options{Root: t.TempDir(), Delimiter: "/"})
	assert.Error(t, err)
}

func TestPut_Layout(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()

	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread, CheckpointID: "parent-1"}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)
	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{
		{Channel: "foo", Value: "foo1"},
		{Channel: checkpoint.InterruptChannel, Value: map[string]any{"reason": "approval"}},
	}, "task_123456"))

	dir := s.Paths().CheckpointFolder(testThread, "", testID)
	assert.Equal(t, filepath.Join(s.Paths().Root(), testThread, DefaultNamespaceFolder, testID), dir)

	for _, name := range []string{"checkpoint", "metadata", "extra.json"} {
		assert.FileExists(t, filepath.Join(dir, "checkpoints", name))
	}
	assert.FileExists(t, filepath.Join(dir, "writes", "task_123456$$foo$$0"))
	assert.FileExists(t, filepath.Join(dir, "writes", "task_123456$$__interrupt__$$-3"))

	raw, err := os.ReadFile(filepath.Join(dir, "checkpoints", "extra.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"parentCheckpointId": "parent-1"}`, string(raw))

	var body map[string]any
	raw, err = os.ReadFile(filepath.Join(dir, "checkpoints", "checkpoint"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, float64(4), body["v"])
	assert.Equal(t, "2025-09-03T07:28:32.524Z", body["ts"])
}

func TestPut_RootCheckpointHasEmptyParentLink(t *testing.T) {
	s := newTestSaver(t, Options{})

	_, err := s.Put(context.Background(), checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(s.Paths().CheckpointsPath(testThread, "", testID), "extra.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestInvalidIdentifiers(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	good := checkpoint.Config{ThreadID: testThread, CheckpointID: testID}

	tests := []struct {
		name string
		call func() error
	}{
		{"thread with separator", func() error {
			_, err := s.Put(ctx, checkpoint.Config{ThreadID: "a/b"}, testCheckpoint(testID), nil)
			return err
		}},
		{"dot-dot thread", func() error {
			_, err := s.GetTuple(ctx, checkpoint.Config{ThreadID: ".."})
			return err
		}},
		{"sentinel namespace", func() error {
			_, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread, Namespace: DefaultNamespaceFolder}, testCheckpoint(testID), nil)
			return err
		}},
		{"checkpoint id with separator", func() error {
			_, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint("../x"), nil)
			return err
		}},
		{"delimiter in task id", func() error {
			return s.PutWrites(ctx, good, []checkpoint.Write{{Channel: "foo"}}, "task$$1")
		}},
		{"delimiter in channel", func() error {
			return s.PutWrites(ctx, good, []checkpoint.Write{{Channel: "a$$b"}}, "task_1")
		}},
		{"list namespace", func() error {
			for _, err := range s.List(ctx, checkpoint.Selector{}.InNamespace("x/y")) {
				return err
			}
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, checkpoint.ErrInvalidIdentifier)

			var idErr *checkpoint.IdentifierError
			assert.True(t, errors.As(err, &idErr))
		})
	}

	entries, err := os.ReadDir(s.Paths().Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected calls must not touch the store")
}

func TestMissingIdentifier_NoIO(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s := newTestSaver(t, Options{Root: root})

	_, err := s.Put(context.Background(), checkpoint.Config{}, testCheckpoint(testID), nil)
	var idErr *checkpoint.IdentifierError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, checkpoint.OpPut, idErr.Op)
	assert.Equal(t, "thread_id", idErr.Field)

	assert.NoDirExists(t, root)
}

func TestGetTuple_CorruptBlob(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)

	path := filepath.Join(s.Paths().CheckpointsPath(testThread, "", testID), "metadata")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = s.GetTuple(ctx, cfg)
	var opErr *checkpoint.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "decode", opErr.Op)
	assert.Equal(t, path, opErr.Path)
}

func TestPut_MetadataStoredFlat(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	md := &checkpoint.Metadata{Source: checkpoint.SourceLoop, Extra: map[string]any{"run_id": "r1"}}
	_, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), md)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(s.Paths().CheckpointsPath(testThread, "", testID), "metadata"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"loop","step":0,"parents":{},"run_id":"r1"}`, string(raw))
}

func TestGetTuple_ExternallyWrittenMetadata(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)

	// Metadata as written by another saver sharing the layout: caller keys at the top level.
	doc := `{"source":"loop","step":1,"parents":{},"run_id":"r2","writes":{"nodeA":{"foo":"foo1"}}}`
	path := filepath.Join(s.Paths().CheckpointsPath(testThread, "", testID), "metadata")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tuple, err := s.GetTuple(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, "r2", tuple.Metadata.Extra["run_id"])
	assert.Equal(t, map[string]any{"nodeA": map[string]any{"foo": "foo1"}}, tuple.Metadata.Extra["writes"])

	var matched []string
	for tp, err := range s.List(ctx, checkpoint.Selector{ThreadID: testThread}, checkpoint.WithFilter(map[string]any{"run_id": "r2"})) {
		require.NoError(t, err)
		matched = append(matched, tp.Config.CheckpointID)
	}
	assert.Equal(t, []string{testID}, matched)
}

func TestGetTuple_SkipsForeignWriteFiles(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)
	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{{Channel: "foo", Value: "foo1"}}, "task_1"))

	writes := s.Paths().WritesPath(testThread, "", testID)
	require.NoError(t, os.WriteFile(filepath.Join(writes, ".tmp-123"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(writes, "README"), []byte("x"), 0o644))

	tuple, err := s.GetTuple(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, []checkpoint.PendingWrite{{TaskID: "task_1", Channel: "foo", Value: "foo1"}}, tuple.PendingWrites)
}

func TestGetTuple_WritesWithoutCheckpoint(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	cfg := checkpoint.Config{ThreadID: testThread, CheckpointID: testID}

	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{{Channel: "foo", Value: 1}}, "task_1"))

	tuple, err := s.GetTuple(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, tuple)
}

func TestPutWrites_DuplicateReservedInBatch(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx := context.Background()
	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)

	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{
		{Channel: checkpoint.ErrorChannel, Value: "first"},
		{Channel: "foo", Value: "foo1"},
		{Channel: checkpoint.ErrorChannel, Value: "last"},
	}, "task_1"))

	tuple, err := s.GetTuple(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, []checkpoint.PendingWrite{
		{TaskID: "task_1", Channel: checkpoint.ErrorChannel, Value: "last"},
		{TaskID: "task_1", Channel: "foo", Value: "foo1"},
	}, tuple.PendingWrites)
}

func TestPutWrites_LogsDiscarded(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newTestSaver(t, Options{Logger: logger})
	ctx := context.Background()
	cfg := checkpoint.Config{ThreadID: testThread, CheckpointID: testID}

	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{{Channel: "foo", Value: 1}}, "task_1"))
	buf.Reset()
	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{{Channel: "foo", Value: 2}}, "task_1"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"pending write discarded"`)
	assert.Contains(t, out, `"component":"checkpointfs"`)
	assert.Contains(t, out, `"discarded":1`)
}

func TestYAMLSerializer(t *testing.T) {
	s := newTestSaver(t, Options{Serializer: serde.YAML{}})
	ctx := context.Background()

	cp := testCheckpoint(testID)
	cfg, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, cp, testMetadata())
	require.NoError(t, err)
	require.NoError(t, s.PutWrites(ctx, cfg, []checkpoint.Write{{Channel: "count", Value: 3}}, "task_1"))

	tuple, err := s.GetTuple(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cp.ChannelValues, tuple.Checkpoint.ChannelValues)
	assert.True(t, cp.TS.Equal(tuple.Checkpoint.TS))
	require.Len(t, tuple.PendingWrites, 1)
	assert.Equal(t, 3, tuple.PendingWrites[0].Value)

	raw, err := os.ReadFile(filepath.Join(s.Paths().CheckpointsPath(testThread, "", testID), "metadata"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "source: loop")
}

func TestCanceledContext(t *testing.T) {
	s := newTestSaver(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetTuple(ctx, checkpoint.Config{ThreadID: testThread})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestList_StopsOnCanceledContext(t *testing.T) {
	s := newTestSaver(t, Options{})
	for _, id := range []string{"cp-1", "cp-2", "cp-3"} {
		_, err := s.Put(context.Background(), checkpoint.Config{ThreadID: testThread}, testCheckpoint(id), testMetadata())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []string
	var gotErr error
	for tuple, err := range s.List(ctx, checkpoint.Selector{ThreadID: testThread}) {
		if err != nil {
			gotErr = err
			continue
		}
		got = append(got, tuple.Config.CheckpointID)
		cancel()
	}
	assert.Equal(t, []string{"cp-3"}, got)
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestSaversShareRoot(t *testing.T) {
	root := t.TempDir()
	writer := newTestSaver(t, Options{Root: root})
	reader := newTestSaver(t, Options{Root: root})
	ctx := context.Background()

	_, err := writer.Put(ctx, checkpoint.Config{ThreadID: testThread}, testCheckpoint(testID), testMetadata())
	require.NoError(t, err)

	tuple, err := reader.GetTuple(ctx, checkpoint.Config{ThreadID: testThread})
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, testID, tuple.Checkpoint.ID)
}
