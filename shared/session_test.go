package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func TestSendResponse_ErrorPassesStatusGate(t *testing.T) {
	session := NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { session.Close() })
	output, ok := session.AcquireOutput()
	require.True(t, ok)
	require.Equal(t, StatusNew, session.GetStatus())

	// A failed initialize must still answer the request that opened the
	// session, even though no handshake ever succeeded.
	id := schema.RequestIDFromInt64(1)
	session.SendResponse(&id, nil, &JSONRPCError{
		Code:    JSONRPCErrorInvalidRequest,
		Message: "unsupported protocol version",
	})

	msg := waitMessage(t, output)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCErrorInvalidRequest, msg.Error.Code)
	assert.True(t, msg.ID.Equal(&id))
}

func TestSendResponse_SuccessGatedBeforeHandshake(t *testing.T) {
	session := NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { session.Close() })
	output, ok := session.AcquireOutput()
	require.True(t, ok)

	id := schema.RequestIDFromInt64(2)
	session.SendResponse(&id, map[string]interface{}{"ok": true}, nil)

	select {
	case msg := <-output:
		t.Fatalf("unexpected message on new session: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
