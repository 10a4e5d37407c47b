package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

type stubCapability struct {
	handlers map[string]MessageHandler
}

func (c *stubCapability) GetHandlers() map[string]MessageHandler       { return c.handlers }
func (c *stubCapability) SetCapabilities(s *schema.ServerCapabilities) {}

// newInputFixture wires an Input with the given handlers to a connected
// session and returns the session's output channel.
func newInputFixture(t *testing.T, handlers map[string]MessageHandler) (*Input, *BaseSession, <-chan *Message) {
	t.Helper()

	input := NewInput(zap.NewNop())
	input.AddServerCapability(&stubCapability{handlers: handlers})

	ctx, cancel := context.WithCancel(context.Background())
	go input.Process(ctx)
	t.Cleanup(cancel)

	session := NewBaseSession(zap.NewNop(), input, nil)
	session.SetStatus(StatusConnected)
	output, ok := session.AcquireOutput()
	require.True(t, ok)
	t.Cleanup(func() { session.Close() })

	return input, session, output
}

func requestMessage(session *BaseSession, id *schema.RequestID, method string) *Message {
	return &Message{
		Session:   session,
		ID:        id,
		Method:    &method,
		Timestamp: time.Now(),
	}
}

func waitMessage(t *testing.T, output <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-output:
		require.NotNil(t, msg)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message arrived on the session output")
		return nil
	}
}

func TestInput_CancelledRequestGetsErrorResponse(t *testing.T) {
	started := make(chan struct{})
	handlers := map[string]MessageHandler{
		"tools/slow": func(ctx context.Context, msg *Message) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	input, session, output := newInputFixture(t, handlers)

	id := schema.RequestIDFromInt64(7)
	require.NoError(t, input.Put(requestMessage(session, &id, "tools/slow")))

	<-started
	require.True(t, session.CancelIncoming(&id))

	// The cancelled request must still terminate with a response.
	msg := waitMessage(t, output)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCErrorRequestCancelled, msg.Error.Code)
	assert.True(t, msg.ID.Equal(&id))
}

func TestInput_FiltersWrapInRegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) MessageFilter {
		return func(next MessageHandler) MessageHandler {
			return func(ctx context.Context, msg *Message) (interface{}, error) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return next(ctx, msg)
			}
		}
	}
	handlers := map[string]MessageHandler{
		"ping": func(ctx context.Context, msg *Message) (interface{}, error) {
			mu.Lock()
			order = append(order, "handler")
			mu.Unlock()
			return map[string]interface{}{}, nil
		},
	}
	input, session, output := newInputFixture(t, handlers)
	input.AddFilter(record("first"), record("second"))
	input.AddFilter(record("third"))

	id := schema.RequestIDFromInt64(1)
	require.NoError(t, input.Put(requestMessage(session, &id, "ping")))
	msg := waitMessage(t, output)
	require.Nil(t, msg.Error)

	mu.Lock()
	defer mu.Unlock()
	// Last-registered filter runs outermost.
	assert.Equal(t, []string{"third", "second", "first", "handler"}, order)
}

func TestInput_FilterCanShortCircuit(t *testing.T) {
	handlers := map[string]MessageHandler{
		"ping": func(ctx context.Context, msg *Message) (interface{}, error) {
			return map[string]interface{}{}, nil
		},
	}
	input, session, output := newInputFixture(t, handlers)
	input.AddFilter(func(next MessageHandler) MessageHandler {
		return func(ctx context.Context, msg *Message) (interface{}, error) {
			return nil, &JSONRPCError{Code: JSONRPCErrorInvalidRequest, Message: "rejected"}
		}
	})

	id := schema.RequestIDFromInt64(2)
	require.NoError(t, input.Put(requestMessage(session, &id, "ping")))
	msg := waitMessage(t, output)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCErrorInvalidRequest, msg.Error.Code)
}

type rejectAllValidator struct{}

func (rejectAllValidator) Validate(*Message) error {
	return &JSONRPCError{Code: JSONRPCErrorResourceLimit, Message: "limit exceeded"}
}

func TestInput_ValidatorRejectionAnswersRequest(t *testing.T) {
	input, session, output := newInputFixture(t, nil)
	input.AddValidator(rejectAllValidator{})

	id := schema.RequestIDFromInt64(3)
	require.Error(t, input.Put(requestMessage(session, &id, "ping")))

	msg := waitMessage(t, output)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCErrorResourceLimit, msg.Error.Code)
	assert.True(t, msg.ID.Equal(&id))
}
