package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func TestBaseCapability_Ping(t *testing.T) {
	bc := NewBase(zap.NewNop(), nil)
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })

	result, err := bc.handlePing(context.Background(), callMessage(t, session, "ping", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, result)
}

func TestBaseCapability_CancelledNotification(t *testing.T) {
	bc := NewBase(zap.NewNop(), nil)
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })

	reqID := schema.RequestIDFromInt64(7)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.TrackIncoming(&reqID, cancel)

	msg := callMessage(t, session, "notifications/cancelled", schema.CancelledNotificationParams{
		RequestID: reqID,
		Reason:    "user gave up",
	})
	_, err := bc.handleNotificationCancelled(context.Background(), msg)
	require.NoError(t, err)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("tracked request context was never cancelled")
	}
}

func TestBaseCapability_CancelledNotificationUnknownRequest(t *testing.T) {
	bc := NewBase(zap.NewNop(), nil)
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })

	msg := callMessage(t, session, "notifications/cancelled", schema.CancelledNotificationParams{
		RequestID: schema.RequestIDFromInt64(99),
	})
	_, err := bc.handleNotificationCancelled(context.Background(), msg)
	assert.NoError(t, err)
}

func TestBaseCapability_InitializedBeforeHandshake(t *testing.T) {
	bc := NewBase(zap.NewNop(), nil)
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })

	_, err := bc.handleNotificationInitialized(context.Background(), callMessage(t, session, "notifications/initialized", nil))
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidRequest, rpcErr.Code)
}
