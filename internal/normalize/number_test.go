package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Run("wrapped pair in normal range", func(t *testing.T) {
		v, ok := Parse(map[string]any{"low": float64(1200), "high": float64(0)})
		assert.True(t, ok)
		assert.Equal(t, WrappedInt{Low: 1200}, v)
		assert.Equal(t, int64(1200), v.Scalar())
	})

	t.Run("wrapped pair with high half", func(t *testing.T) {
		v, ok := Parse(map[string]any{"low": int64(-1), "high": int64(0)})
		assert.True(t, ok)
		assert.Equal(t, int64(4294967295), v.Scalar())

		v, ok = Parse(map[string]any{"low": 0, "high": 1})
		assert.True(t, ok)
		assert.Equal(t, int64(1)<<32, v.Scalar())
	})

	t.Run("map without both halves is not a number", func(t *testing.T) {
		_, ok := Parse(map[string]any{"low": 3})
		assert.False(t, ok)
	})

	t.Run("integral float folds to Int", func(t *testing.T) {
		v, ok := Parse(float64(42))
		assert.True(t, ok)
		assert.Equal(t, Int(42), v)
	})

	t.Run("fractional float stays Float", func(t *testing.T) {
		v, ok := Parse(2.5)
		assert.True(t, ok)
		assert.Equal(t, Float(2.5), v)
	})

	t.Run("json number", func(t *testing.T) {
		v, ok := Parse(json.Number("17"))
		assert.True(t, ok)
		assert.Equal(t, Int(17), v)
	})

	t.Run("nil is absent", func(t *testing.T) {
		v, ok := Parse(nil)
		assert.True(t, ok)
		assert.Equal(t, Absent{}, v)
		assert.Equal(t, "", v.Scalar())
	})

	t.Run("string is not a number", func(t *testing.T) {
		_, ok := Parse("PGM1")
		assert.False(t, ok)
	})
}

func TestScalar(t *testing.T) {
	assert.Equal(t, int64(1200), Scalar(map[string]any{"low": 1200, "high": 0}))
	assert.Equal(t, int64(7), Scalar(int32(7)))
	assert.Equal(t, "", Scalar(nil))
	assert.Equal(t, "PGM1", Scalar("PGM1"))
	assert.Equal(t, true, Scalar(true))
}

func TestInt64(t *testing.T) {
	assert.Equal(t, int64(0), Int64(nil))
	assert.Equal(t, int64(0), Int64("abc"))
	assert.Equal(t, int64(9), Int64(map[string]any{"low": 9, "high": 0}))
	assert.Equal(t, int64(3), Int64(3.0))
}

func TestString(t *testing.T) {
	assert.Equal(t, "1200", String(map[string]any{"low": 1200, "high": 0}))
	assert.Equal(t, "2.5", String(2.5))
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "T1", String("T1"))
}

func TestList(t *testing.T) {
	assert.Nil(t, List(nil))
	assert.Equal(t, []any{"A", int64(2), ""}, List([]any{"A", map[string]any{"low": 2, "high": 0}, nil}))
	assert.Equal(t, []any{"X"}, List("X"))
	assert.Equal(t, []any{"a", "b"}, List([]string{"a", "b"}))
	assert.Equal(t, []string{"A", "3"}, Strings([]any{"A", 3}))
	assert.Nil(t, Strings(nil))
}
