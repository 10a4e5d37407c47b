package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_UnmarshalString(t *testing.T) {
	var id RequestID
	require.NoError(t, json.Unmarshal([]byte(`"abc-1"`), &id))
	assert.False(t, id.IsEmpty())
	want := RequestIDFromString("abc-1")
	assert.True(t, id.Equal(&want))
}

func TestRequestID_UnmarshalNumber(t *testing.T) {
	var id RequestID
	require.NoError(t, json.Unmarshal([]byte(`42`), &id))
	assert.False(t, id.IsEmpty())
	want := RequestIDFromInt64(42)
	assert.True(t, id.Equal(&want))
}

func TestRequestID_RejectsNull(t *testing.T) {
	var id RequestID
	assert.Error(t, json.Unmarshal([]byte(`null`), &id))
}

func TestRequestID_StringAndNumberAreDistinct(t *testing.T) {
	var str, num RequestID
	require.NoError(t, json.Unmarshal([]byte(`"5"`), &str))
	require.NoError(t, json.Unmarshal([]byte(`5`), &num))

	assert.False(t, str.Equal(&num))
	assert.NotEqual(t, str.String(), num.String())
}

func TestRequestID_MarshalRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"string id", `"req-7"`},
		{"integer id", `7`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var id RequestID
			require.NoError(t, json.Unmarshal([]byte(tc.wire), &id))
			out, err := json.Marshal(&id)
			require.NoError(t, err)
			assert.JSONEq(t, tc.wire, string(out))
		})
	}
}

func TestRequestID_EmptyMarshalFails(t *testing.T) {
	var id RequestID
	require.True(t, id.IsEmpty())
	_, err := json.Marshal(&id)
	assert.Error(t, err)
}
