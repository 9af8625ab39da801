package printer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	DisableColor()
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		var buf bytes.Buffer
		err := Error(&buf, "Test Error", "This is a test error", nil)
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, buf.String(), "This is a test error")
	})

	t.Run("single suggestion printed as is", func(t *testing.T) {
		var buf bytes.Buffer
		_ = Error(&buf, "Test Error", "Explanation", []string{"Try this fix"})
		assert.Contains(t, buf.String(), "\nTry this fix\n")
		assert.NotContains(t, buf.String(), "Either:")
	})

	t.Run("multiple suggestions numbered", func(t *testing.T) {
		var buf bytes.Buffer
		_ = Error(&buf, "Test Error", "Explanation", []string{"First option", "Second option"})
		out := buf.String()
		assert.Contains(t, out, "Either:")
		assert.Contains(t, out, "  1. First option")
		assert.Contains(t, out, "  2. Second option")
	})
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "deleted %s", "t1")
	Success(&buf, "✓ already marked")
	assert.Equal(t, "✓ deleted t1\n✓ already marked\n", buf.String())
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	Fields(&buf, map[string]any{"step": 2, "source": "loop"})
	assert.Equal(t, "  source:        loop\n  step:          2\n", buf.String())
}

func TestTable(t *testing.T) {
	t.Run("header before first row and footer count", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, []string{"ID", "SOURCE", "WRITES"}, []int{4, 6})
		table.Row("a", "loop", "2")
		table.Row("abcdefg", "update", "0")
		table.Footer("checkpoint")

		assert.Equal(t, "ID   SOURCE WRITES\n"+
			"---- ------ ------\n"+
			"a    loop   2\n"+
			"a... update 0\n"+
			"\n2 checkpoints found\n", buf.String())
		assert.Equal(t, 2, table.Rows())
	})

	t.Run("empty table prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, []string{"ID"}, nil)
		assert.Zero(t, table.Rows())
		assert.Empty(t, buf.String())
	})

	t.Run("singular footer", func(t *testing.T) {
		var buf bytes.Buffer
		table := NewTable(&buf, []string{"ID"}, nil)
		table.Row("x")
		table.Footer("checkpoint")
		assert.Contains(t, buf.String(), "\n1 checkpoint found\n")
	})
}
