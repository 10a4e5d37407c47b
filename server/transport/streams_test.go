package transport

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newStreamsFixture(t *testing.T) (*streamRouter, *shared.BaseSession, *sessionStreams) {
	t.Helper()
	router := newStreamRouter(NewMemoryEventStore(64), 3*time.Second, StreamModeStreaming, zap.NewNop())
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	session.SetStatus(shared.StatusConnected)
	ss, err := router.Attach(session)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return router, session, ss
}

// nextPayload reads events until one carries data, skipping priming events.
func nextPayload(t *testing.T, reader *StreamReader) *shared.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		event, err := reader.Next(ctx)
		require.NoError(t, err)
		if event.IsPrime() {
			continue
		}
		var msg shared.Message
		require.NoError(t, json.Unmarshal(event.Data, &msg))
		return &msg
	}
}

func TestStreamRouter_AttachIsIdempotent(t *testing.T) {
	router, session, ss := newStreamsFixture(t)
	again, err := router.Attach(session)
	require.NoError(t, err)
	assert.Same(t, ss, again)
	assert.Same(t, ss, router.Lookup(session.GetID()))
}

func TestStreamRouter_ResponseTerminatesRequestStream(t *testing.T) {
	_, session, ss := newStreamsFixture(t)

	reqID := schema.RequestIDFromInt64(1)
	reader, err := ss.OpenRequestStream([]*schema.RequestID{&reqID})
	require.NoError(t, err)

	session.SendResponse(&reqID, map[string]string{"ok": "yes"}, nil)

	msg := nextPayload(t, reader)
	require.NotNil(t, msg.ID)
	assert.True(t, msg.ID.Equal(&reqID))
	require.NotNil(t, msg.Result)

	// The terminal response is the last event of the stream.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = reader.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamRouter_BatchStreamWaitsForAllResponses(t *testing.T) {
	_, session, ss := newStreamsFixture(t)

	id1 := schema.RequestIDFromInt64(1)
	id2 := schema.RequestIDFromInt64(2)
	reader, err := ss.OpenRequestStream([]*schema.RequestID{&id1, &id2})
	require.NoError(t, err)

	session.SendResponse(&id1, map[string]int{"n": 1}, nil)
	session.SendResponse(&id2, map[string]int{"n": 2}, nil)

	first := nextPayload(t, reader)
	second := nextPayload(t, reader)
	assert.True(t, first.ID.Equal(&id1))
	assert.True(t, second.ID.Equal(&id2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = reader.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamRouter_NotificationGoesToUnsolicitedStream(t *testing.T) {
	_, session, ss := newStreamsFixture(t)

	reader := ss.UnsolicitedReader()
	require.NotNil(t, reader)

	session.SendNotification(context.Background(), "notifications/resources/updated", map[string]string{"uri": "test://a"})

	msg := nextPayload(t, reader)
	require.NotNil(t, msg.Method)
	assert.Equal(t, "notifications/resources/updated", *msg.Method)
}

func TestStreamRouter_RelatedMessagesFollowRequestStream(t *testing.T) {
	_, session, ss := newStreamsFixture(t)

	reqID := schema.RequestIDFromInt64(5)
	reader, err := ss.OpenRequestStream([]*schema.RequestID{&reqID})
	require.NoError(t, err)

	ctx := shared.WithRelatedRequestID(context.Background(), &reqID)
	session.SendNotification(ctx, "notifications/progress", map[string]int{"progress": 1})
	session.SendResponse(&reqID, map[string]string{}, nil)

	progress := nextPayload(t, reader)
	require.NotNil(t, progress.Method)
	assert.Equal(t, "notifications/progress", *progress.Method)

	response := nextPayload(t, reader)
	assert.Nil(t, response.Method)
	assert.True(t, response.ID.Equal(&reqID))
}

func TestStreamRouter_ClaimGet(t *testing.T) {
	_, _, ss := newStreamsFixture(t)

	require.True(t, ss.ClaimGet())
	assert.False(t, ss.ClaimGet())
	ss.ReleaseGet()
	assert.True(t, ss.ClaimGet())
}

func TestStreamRouter_UnsolicitedStreamStartsWithPrime(t *testing.T) {
	_, _, ss := newStreamsFixture(t)

	reader := ss.UnsolicitedReader()
	require.NotNil(t, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	event, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.True(t, event.IsPrime())
	assert.Equal(t, 3*time.Second, event.Retry)
}

func TestStreamRouter_DetachOnSessionClose(t *testing.T) {
	router, session, _ := newStreamsFixture(t)

	require.NoError(t, session.Close())

	deadline := time.Now().Add(2 * time.Second)
	for router.Lookup(session.GetID()) != nil {
		if time.Now().After(deadline) {
			t.Fatal("router never detached the closed session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
