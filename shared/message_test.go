package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_UnmarshalRequest(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"cursor":"abc"}}`), &msg))
	assert.True(t, msg.IsRequest())
	assert.False(t, msg.IsNotification())
	assert.False(t, msg.IsResponse())
	assert.Equal(t, "tools/list", *msg.Method)
	require.NotNil(t, msg.Params)
}

func TestMessage_UnmarshalNotification(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &msg))
	assert.True(t, msg.IsNotification())
	assert.False(t, msg.IsRequest())
	assert.Nil(t, msg.ID)
}

func TestMessage_UnmarshalResponse(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"r-1","result":{"ok":true}}`), &msg))
	assert.True(t, msg.IsResponse())
	assert.Nil(t, msg.Method)
	require.NotNil(t, msg.Result)
}

func TestMessage_UnmarshalNullResultIsResponse(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":2,"result":null}`), &msg))
	assert.True(t, msg.IsResponse())
	require.NotNil(t, msg.Result)
	assert.Equal(t, "null", string(*msg.Result))
}

func TestMessage_UnmarshalErrorResponse(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"method not found"}}`), &msg))
	assert.True(t, msg.IsResponse())
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCErrorMethodNotFound, msg.Error.Code)
}

func TestMessage_UnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"missing version", `{"id":1,"method":"ping"}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"no method no result no error", `{"jsonrpc":"2.0","id":1}`},
		{"not json", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var msg Message
			assert.Error(t, json.Unmarshal([]byte(tc.wire), &msg))
		})
	}
}

func TestParseMessages_Single(t *testing.T) {
	msgs, err := ParseMessages(nil, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsRequest())
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestParseMessages_Batch(t *testing.T) {
	data := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"}
	]`)
	msgs, err := ParseMessages(nil, data)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsRequest())
	assert.True(t, msgs[1].IsNotification())
}

func TestParseMessages_EmptyBatch(t *testing.T) {
	_, err := ParseMessages(nil, []byte(`[]`))
	assert.Error(t, err)
}

func TestMessage_MarshalRequestRoundTrip(t *testing.T) {
	wire := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo"}}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(wire), &msg))
	out, err := json.Marshal(&msg)
	require.NoError(t, err)
	assert.JSONEq(t, wire, string(out))
}

func TestMessage_MarshalErrorResponse(t *testing.T) {
	wire := `{"jsonrpc":"2.0","id":9,"error":{"code":-32603,"message":"boom"}}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(wire), &msg))
	out, err := json.Marshal(&msg)
	require.NoError(t, err)
	assert.JSONEq(t, wire, string(out))
}

func TestMessage_MarshalResponseRequiresIDAndResult(t *testing.T) {
	msg := &Message{}
	_, err := json.Marshal(msg)
	assert.Error(t, err)
}

func TestMessage_StringAndNumericIDsStayDistinct(t *testing.T) {
	var numeric, str Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":5,"method":"ping"}`), &numeric))
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"5","method":"ping"}`), &str))
	assert.False(t, numeric.ID.Equal(str.ID))
}
