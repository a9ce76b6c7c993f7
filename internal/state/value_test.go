package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_DistinguishesKinds(t *testing.T) {
	assert.False(t, Equal(Int(1), Float(1)))
	assert.False(t, Equal(Null{}, Bool(false)))
	assert.False(t, Equal(String(""), Null{}))
}

func TestEqual_DeepStructures(t *testing.T) {
	a := Object{
		"items": Array{Int(1), Int(2)},
		"meta":  Object{"done": Bool(true)},
	}
	b := Object{
		"meta":  Object{"done": Bool(true)},
		"items": Array{Int(1), Int(2)},
	}
	assert.True(t, Equal(a, b))

	b["items"] = Array{Int(1), Int(3)}
	assert.False(t, Equal(a, b))
}

func TestEqual_NilTreatedAsNull(t *testing.T) {
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Int(0)))
}

func TestClone_IsolatesContainers(t *testing.T) {
	orig := Object{"list": Array{Int(1)}, "n": Int(7)}
	cp := Clone(orig).(Object)

	cp["list"].(Array)[0] = Int(99)
	cp["n"] = Int(0)

	assert.True(t, Equal(orig["list"], Array{Int(1)}))
	assert.True(t, Equal(orig["n"], Int(7)))
}

func TestFromGo_RoundTrip(t *testing.T) {
	in := map[string]any{
		"name":  "widget",
		"count": 3,
		"ratio": 0.5,
		"tags":  []any{"a", "b"},
		"gone":  nil,
	}
	v, err := FromGo(in)
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.True(t, Equal(obj["count"], Int(3)))
	assert.True(t, Equal(obj["ratio"], Float(0.5)))
	assert.True(t, Equal(obj["gone"], Null{}))

	back := ToGo(v).(map[string]any)
	assert.Equal(t, "widget", back["name"])
	assert.Equal(t, int64(3), back["count"])
	assert.Equal(t, []any{"a", "b"}, back["tags"])
}

func TestFromGo_RejectsUnsupportedTypes(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts
	// before U+FF61 in UTF-16 even though its UTF-8 bytes sort after.
	o := Object{
		"｡":     Int(1),
		"\U00010000": Int(2),
		"a":          Int(3),
	}
	assert.Equal(t, []string{"a", "\U00010000", "｡"}, SortedKeys(o))
}
