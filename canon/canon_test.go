package canon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zulu":1}`, string(got))
}

func TestMarshalSortsKeysByUTF16Units(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00 in UTF-16, which sorts
	// before U+FF61. UTF-8 byte order would put them the other way around.
	got, err := Marshal(map[string]any{
		"\uff61":     1,
		"\U00010000": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uff61\":1}", string(got))
}

func TestMarshalRejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]any{"x": 1.5})
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = Marshal([]any{float32(1)})
	assert.ErrorContains(t, err, "floats are forbidden")
}

func TestMarshalRejectsNull(t *testing.T) {
	_, err := Marshal(map[string]any{"x": nil})
	assert.ErrorContains(t, err, "null is forbidden")
}

func TestMarshalJSONNumber(t *testing.T) {
	got, err := Marshal(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))

	_, err = Marshal(json.Number("1.5"))
	assert.ErrorContains(t, err, "non-integer")
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	got, err := Marshal("<a>&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(got))
}

func TestMarshalNormalizesNFC(t *testing.T) {
	// "e" followed by combining acute accent normalizes to the precomposed
	// form, so the two spellings produce identical bytes.
	a, err := Marshal("caf\u00e9")
	require.NoError(t, err)
	b, err := Marshal("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalLineSeparatorsLiteral(t *testing.T) {
	got, err := Marshal("a b c")
	require.NoError(t, err)
	assert.Equal(t, "\"a b c\"", string(got))
}

func TestMarshalNested(t *testing.T) {
	got, err := Marshal(map[string]any{
		"list": []any{"x", uint64(7), true},
		"obj":  map[string]any{"b": int64(-1), "a": uint8(255)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":["x",7,true],"obj":{"a":255,"b":-1}}`, string(got))
}

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]any{"k1": "v", "k2": []any{1, 2, 3}, "k3": map[string]any{"n": 9}}
	a, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		b, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestMarshalUnsupportedType(t *testing.T) {
	_, err := Marshal(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}
