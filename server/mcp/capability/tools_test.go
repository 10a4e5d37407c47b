package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newToolsFixture(t *testing.T) (*ToolsCapability, *shared.BaseSession) {
	t.Helper()
	tc := NewToolsCapability(nil, nil, zap.NewNop())
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })
	return tc, session
}

func callMessage(t *testing.T, session shared.ISession, method string, params interface{}) *shared.Message {
	t.Helper()
	id := schema.RequestIDFromInt64(1)
	msg := &shared.Message{ID: &id, Method: &method, Session: session}
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw := json.RawMessage(data)
		msg.Params = &raw
	}
	return msg
}

// waitTaskStatus polls the store until the task reaches the wanted status.
func waitTaskStatus(t *testing.T, store tasks.Store, taskID, sessionID string, want schema.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), taskID, sessionID)
		require.NoError(t, err)
		if task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
}

func echoHandler(ctx context.Context, msg *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
	text, _ := arguments["text"].(string)
	return nil, schema.NewTextContent(text), nil
}

var echoSchema = &schema.JSONSchemaProperty{
	Type: "object",
	Properties: map[string]schema.JSONSchemaProperty{
		"text": {Type: "string"},
	},
	Required: []string{"text"},
}

func TestToolsCapability_AddTool(t *testing.T) {
	tc, _ := newToolsFixture(t)

	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	err := tc.AddTool("echo", "duplicate", nil, nil, echoHandler)
	assert.ErrorContains(t, err, "already exists")

	err = tc.AddTool("broken", "nil handler", nil, nil, nil)
	assert.ErrorContains(t, err, "handler cannot be nil")
}

func TestToolsCapability_AddToolRejectsBadSchema(t *testing.T) {
	tc, _ := newToolsFixture(t)

	bad := &schema.JSONSchemaProperty{
		Type: "object",
		Properties: map[string]schema.JSONSchemaProperty{
			"text": {Type: "string", Pattern: "("},
		},
	}
	err := tc.AddTool("broken", "unparseable pattern", bad, nil, echoHandler)
	assert.Error(t, err)
}

func TestToolsCapability_List(t *testing.T) {
	tc, session := newToolsFixture(t)
	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	result, err := tc.handleToolsList(context.Background(), callMessage(t, session, "tools/list", nil))
	require.NoError(t, err)

	list, ok := result.(schema.ListToolsResult)
	require.True(t, ok)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "echo", list.Tools[0].Name)
	assert.Equal(t, "echoes text", list.Tools[0].Description)
}

func TestToolsCapability_Call(t *testing.T) {
	tc, session := newToolsFixture(t)
	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "echo",
		Arguments: schema.Arguments{"text": "hello"},
	})
	result, err := tc.handleToolsCall(context.Background(), msg)
	require.NoError(t, err)

	callResult, ok := result.(schema.CallToolResult)
	require.True(t, ok)
	assert.False(t, callResult.IsError)
	require.Len(t, callResult.Content, 1)
	text, ok := callResult.Content[0].(*schema.TextContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
}

func TestToolsCapability_CallValidatesArguments(t *testing.T) {
	tc, session := newToolsFixture(t)
	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	// Required "text" argument missing.
	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "echo",
		Arguments: schema.Arguments{},
	})
	_, err := tc.handleToolsCall(context.Background(), msg)
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)

	// Wrong argument type.
	msg = callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "echo",
		Arguments: schema.Arguments{"text": 42},
	})
	_, err = tc.handleToolsCall(context.Background(), msg)
	assert.Error(t, err)
}

func TestToolsCapability_CallUnknownTool(t *testing.T) {
	tc, session := newToolsFixture(t)

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "missing",
		Arguments: schema.Arguments{},
	})
	_, err := tc.handleToolsCall(context.Background(), msg)
	assert.ErrorContains(t, err, "tool not found")
}

func TestToolsCapability_CallMissingParams(t *testing.T) {
	tc, session := newToolsFixture(t)

	_, err := tc.handleToolsCall(context.Background(), callMessage(t, session, "tools/call", nil))
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)
}

func TestToolsCapability_HandlerErrorBecomesIsError(t *testing.T) {
	tc, session := newToolsFixture(t)
	failing := func(ctx context.Context, msg *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error) {
		return nil, nil, assert.AnError
	}
	require.NoError(t, tc.AddTool("fail", "always fails", nil, nil, failing))

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "fail",
		Arguments: schema.Arguments{},
	})
	result, err := tc.handleToolsCall(context.Background(), msg)
	require.NoError(t, err)

	callResult, ok := result.(schema.CallToolResult)
	require.True(t, ok)
	assert.True(t, callResult.IsError)
	require.Len(t, callResult.Content, 1)
	text, ok := callResult.Content[0].(*schema.TextContent)
	require.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), text.Text)
}

func TestToolsCapability_UpdateAndDelete(t *testing.T) {
	tc, session := newToolsFixture(t)

	err := tc.UpdateTool("echo", "new", nil, nil, echoHandler)
	assert.ErrorContains(t, err, "does not exist")

	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))
	require.NoError(t, tc.UpdateTool("echo", "updated", nil, nil, echoHandler))

	result, err := tc.handleToolsList(context.Background(), callMessage(t, session, "tools/list", nil))
	require.NoError(t, err)
	list := result.(schema.ListToolsResult)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "updated", list.Tools[0].Description)

	require.NoError(t, tc.DeleteTool("echo"))
	assert.Error(t, tc.DeleteTool("echo"))

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{Name: "echo", Arguments: schema.Arguments{}})
	_, err = tc.handleToolsCall(context.Background(), msg)
	assert.ErrorContains(t, err, "tool not found")
}

func TestToolsCapability_TaskAugmentedCallWithoutRunner(t *testing.T) {
	tc, session := newToolsFixture(t)
	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "echo",
		Arguments: schema.Arguments{"text": "hi"},
		Task:      &schema.TaskMetadata{},
	})
	_, err := tc.handleToolsCall(context.Background(), msg)
	assert.ErrorContains(t, err, "not supported")
}

func TestToolsCapability_TaskAugmentedCall(t *testing.T) {
	store := tasks.NewMemoryStore(zap.NewNop(), nil)
	t.Cleanup(func() { _ = store.Close() })
	runner := tasks.NewRunner(store, zap.NewNop())
	tc := NewToolsCapability(nil, runner, zap.NewNop())
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })
	require.NoError(t, tc.AddTool("echo", "echoes text", echoSchema, nil, echoHandler))

	msg := callMessage(t, session, "tools/call", schema.CallToolRequestParams{
		Name:      "echo",
		Arguments: schema.Arguments{"text": "later"},
		Task:      &schema.TaskMetadata{},
	})
	result, err := tc.handleToolsCall(context.Background(), msg)
	require.NoError(t, err)

	created, ok := result.(schema.CreateTaskResult)
	require.True(t, ok)
	require.NotEmpty(t, created.Task.TaskID)
	assert.Equal(t, schema.TaskStatusWorking, created.Task.Status)

	// The worker finishes the call and stores the tool result on the task.
	waitTaskStatus(t, store, created.Task.TaskID, session.GetID(), schema.TaskStatusCompleted)
	raw, err := store.GetResult(context.Background(), created.Task.TaskID, session.GetID())
	require.NoError(t, err)
	var callResult schema.CallToolResult
	require.NoError(t, json.Unmarshal(raw, &callResult))
	assert.False(t, callResult.IsError)
	require.Len(t, callResult.Content, 1)
}
