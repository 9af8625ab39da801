package checkpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

func TestResolveListOptions(t *testing.T) {
	t.Run("defaults to no limit", func(t *testing.T) {
		o := checkpoint.ResolveListOptions()
		assert.Equal(t, -1, o.Limit)
		assert.Empty(t, o.Before)
		assert.Nil(t, o.Filter)
	})

	t.Run("applies options in order", func(t *testing.T) {
		o := checkpoint.ResolveListOptions(
			checkpoint.WithLimit(5),
			checkpoint.WithBefore("cp-9"),
			checkpoint.WithFilter(map[string]any{"source": "loop"}),
			checkpoint.WithFilter(map[string]any{"step": 2}),
			checkpoint.WithWhere("step > 1"),
			nil,
		)
		assert.Equal(t, 5, o.Limit)
		assert.Equal(t, "cp-9", o.Before)
		assert.Equal(t, map[string]any{"source": "loop", "step": 2}, o.Filter)
		assert.Equal(t, "step > 1", o.Where)
	})
}

func TestSelectIDs(t *testing.T) {
	stored := []string{"b", "d", "a", "c"}

	tests := []struct {
		name  string
		exact string
		opts  []checkpoint.ListOption
		want  []string
	}{
		{"newest first", "", nil, []string{"d", "c", "b", "a"}},
		{"before is exclusive", "", []checkpoint.ListOption{checkpoint.WithBefore("c")}, []string{"b", "a"}},
		{"limit", "", []checkpoint.ListOption{checkpoint.WithLimit(2)}, []string{"d", "c"}},
		{"zero limit", "", []checkpoint.ListOption{checkpoint.WithLimit(0)}, []string{}},
		{"before then limit", "", []checkpoint.ListOption{checkpoint.WithBefore("d"), checkpoint.WithLimit(1)}, []string{"c"}},
		{"exact", "b", nil, []string{"b"}},
		{"exact missing", "z", nil, []string{}},
		{"exact excluded by before", "c", []checkpoint.ListOption{checkpoint.WithBefore("c")}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkpoint.SelectIDs(stored, tt.exact, checkpoint.ResolveListOptions(tt.opts...))
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []string{"b", "d", "a", "c"}, stored, "input must not be reordered")
}

func TestMatch(t *testing.T) {
	tuple := &checkpoint.Tuple{
		Config:   checkpoint.Config{ThreadID: "t1", CheckpointID: "cp-1"},
		Metadata: &checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 2},
	}

	m, err := checkpoint.ResolveListOptions(checkpoint.WithFilter(map[string]any{"source": "loop"})).Matcher()
	require.NoError(t, err)
	assert.True(t, checkpoint.Match(m, tuple))
	assert.False(t, checkpoint.Match(m, nil))

	m, err = checkpoint.ResolveListOptions(checkpoint.WithWhere(`thread_id == "t2"`)).Matcher()
	require.NoError(t, err)
	assert.False(t, checkpoint.Match(m, tuple))

	assert.True(t, checkpoint.Match(nil, tuple))
}
