package argtree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_ToAny_RoundTrip(t *testing.T) {
	input := map[string]any{
		"path":    "/tmp/x",
		"count":   float64(3),
		"ok":      true,
		"missing": nil,
		"tags":    []any{"a", "b"},
		"nested":  map[string]any{"cmd": "ls"},
	}

	v := FromAny(input)
	assert.Equal(t, KindObject, v.Kind())

	out := v.ToAny().(map[string]any)
	assert.Equal(t, "/tmp/x", out["path"])
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, true, out["ok"])
	assert.Nil(t, out["missing"])
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, map[string]any{"cmd": "ls"}, out["nested"])
}

func TestObject_Field(t *testing.T) {
	v := Object([]string{"a", "b"}, map[string]Value{"a": String("x"), "b": Number(1)})

	val, ok := v.Field("a")
	require.True(t, ok)
	assert.Equal(t, "x", val.Str())

	_, ok = v.Field("missing")
	assert.False(t, ok)
}

func TestWalk_AppliesTransformToEveryField(t *testing.T) {
	v := FromAny(map[string]any{
		"project_path": "/tmp/a",
		"nested": map[string]any{
			"cmd": "ls",
		},
		"list": []any{
			map[string]any{"path": "/tmp/b"},
		},
	})

	var visited []string
	walked, err := Walk(v, func(key string, val Value) (Value, error) {
		visited = append(visited, key)
		if key == "project_path" {
			return String("/resolved/a"), nil
		}
		return val, nil
	})
	require.NoError(t, err)

	assert.Contains(t, visited, "project_path")
	assert.Contains(t, visited, "cmd")
	assert.Contains(t, visited, "path")

	out := walked.ToAny().(map[string]any)
	assert.Equal(t, "/resolved/a", out["project_path"])
}

func TestWalk_PropagatesError(t *testing.T) {
	v := FromAny(map[string]any{"command": "rm -rf /"})

	boom := errors.New("blocked")
	_, err := Walk(v, func(key string, val Value) (Value, error) {
		if key == "command" {
			return Value{}, boom
		}
		return val, nil
	})

	assert.ErrorIs(t, err, boom)
}

func TestWalk_DoesNotMutateOriginal(t *testing.T) {
	v := FromAny(map[string]any{"path": "/tmp/a"})

	_, err := Walk(v, func(key string, val Value) (Value, error) {
		if key == "path" {
			return String("/changed"), nil
		}
		return val, nil
	})
	require.NoError(t, err)

	original, _ := v.Field("path")
	assert.Equal(t, "/tmp/a", original.Str())
}

func TestFromAny_PanicsOnUnsupportedType(t *testing.T) {
	assert.Panics(t, func() {
		FromAny(struct{}{})
	})
}
