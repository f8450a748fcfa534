package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"bool", true, "true"},
		{"empty params", Params{}, "{}"},
		{"strings", []string{"b", "a"}, `["b","a"]`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash kept", `a\u2028`, `"a\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": Params{"y": "2", "x": "1"},
		"beta":  "3",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"x":"1","y":"2"},"beta":"3","zebra":1}`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"a": nil})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestIdentityKey(t *testing.T) {
	a := Identity{URN: "urn:rescue-victim", Inputs: Params{"victim": "v1"}}
	b := Identity{URN: "urn:rescue-victim", Inputs: Params{"victim": "v1"}, Outputs: Params{}}
	c := Identity{URN: "urn:rescue-victim", Inputs: Params{"victim": "v2"}}

	assert.Equal(t, MustIdentityKey(a), MustIdentityKey(b), "nil and empty outputs are the same identity")
	assert.NotEqual(t, MustIdentityKey(a), MustIdentityKey(c))
	assert.Len(t, MustIdentityKey(a), 64)
}
