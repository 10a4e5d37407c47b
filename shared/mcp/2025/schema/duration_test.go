package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilliseconds_Marshal(t *testing.T) {
	out, err := json.Marshal(DurationMs(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "1500", string(out))
}

func TestMilliseconds_MarshalNegativeFails(t *testing.T) {
	_, err := json.Marshal(DurationMs(-time.Second))
	assert.Error(t, err)
}

func TestMilliseconds_Unmarshal(t *testing.T) {
	var m Milliseconds
	require.NoError(t, json.Unmarshal([]byte("250"), &m))
	assert.Equal(t, 250*time.Millisecond, m.Duration())
}

func TestMilliseconds_UnmarshalRejectsInvalid(t *testing.T) {
	for _, wire := range []string{`"250"`, "-1", "1.5", "null"} {
		var m Milliseconds
		assert.Error(t, json.Unmarshal([]byte(wire), &m), "wire=%s", wire)
	}
}
