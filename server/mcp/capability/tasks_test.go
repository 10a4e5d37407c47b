package capability

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newTasksFixture(t *testing.T) (*TasksCapability, tasks.Store, *shared.BaseSession) {
	t.Helper()
	store := tasks.NewMemoryStore(zap.NewNop(), nil)
	t.Cleanup(func() { _ = store.Close() })
	runner := tasks.NewRunner(store, zap.NewNop())
	tc := NewTasksCapability(runner, zap.NewNop())
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	t.Cleanup(func() { _ = session.Close() })
	return tc, store, session
}

func TestTasksCapability_Get(t *testing.T) {
	tc, store, session := newTasksFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	msg := callMessage(t, session, "tasks/get", schema.TaskRequestParams{TaskID: task.TaskID})
	result, err := tc.handleTasksGet(context.Background(), msg)
	require.NoError(t, err)

	got, ok := result.(schema.GetTaskResult)
	require.True(t, ok)
	assert.Equal(t, task.TaskID, got.TaskID)
	assert.Equal(t, schema.TaskStatusWorking, got.Status)
}

func TestTasksCapability_GetUnknownTask(t *testing.T) {
	tc, _, session := newTasksFixture(t)

	msg := callMessage(t, session, "tasks/get", schema.TaskRequestParams{TaskID: "missing"})
	_, err := tc.handleTasksGet(context.Background(), msg)
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)
}

func TestTasksCapability_GetRequiresTaskID(t *testing.T) {
	tc, _, session := newTasksFixture(t)

	_, err := tc.handleTasksGet(context.Background(), callMessage(t, session, "tasks/get", nil))
	assert.Error(t, err)

	msg := callMessage(t, session, "tasks/get", schema.TaskRequestParams{})
	_, err = tc.handleTasksGet(context.Background(), msg)
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)
}

func TestTasksCapability_SessionIsolation(t *testing.T) {
	tc, store, session := newTasksFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, "someone-else")
	require.NoError(t, err)

	// Another session's task is indistinguishable from a missing one.
	msg := callMessage(t, session, "tasks/get", schema.TaskRequestParams{TaskID: task.TaskID})
	_, err = tc.handleTasksGet(context.Background(), msg)
	assert.Error(t, err)
}

func TestTasksCapability_Result(t *testing.T) {
	tc, store, session := newTasksFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	msg := callMessage(t, session, "tasks/result", schema.TaskRequestParams{TaskID: task.TaskID})

	// Before the task finishes there is nothing to fetch.
	_, err = tc.handleTasksResult(context.Background(), msg)
	require.Error(t, err)
	rpcErr, ok := err.(*shared.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, shared.JSONRPCErrorInvalidRequest, rpcErr.Code)

	_, err = store.StoreResult(context.Background(), task.TaskID, schema.TaskStatusCompleted, "", json.RawMessage(`{"answer":42}`), session.GetID())
	require.NoError(t, err)

	result, err := tc.handleTasksResult(context.Background(), msg)
	require.NoError(t, err)
	raw, ok := result.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"answer":42}`, string(raw))
}

func TestTasksCapability_List(t *testing.T) {
	tc, store, session := newTasksFixture(t)

	for i := 0; i < 3; i++ {
		_, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
		require.NoError(t, err)
	}
	_, err := store.Create(context.Background(), nil, nil, nil, "someone-else")
	require.NoError(t, err)

	result, err := tc.handleTasksList(context.Background(), callMessage(t, session, "tasks/list", nil))
	require.NoError(t, err)

	list, ok := result.(schema.ListTasksResult)
	require.True(t, ok)
	assert.Len(t, list.Tasks, 3)
	assert.Empty(t, list.NextCursor)
}

func TestTasksCapability_Cancel(t *testing.T) {
	tc, store, session := newTasksFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	msg := callMessage(t, session, "tasks/cancel", schema.TaskRequestParams{TaskID: task.TaskID})
	result, err := tc.handleTasksCancel(context.Background(), msg)
	require.NoError(t, err)

	got, ok := result.(schema.GetTaskResult)
	require.True(t, ok)
	assert.Equal(t, schema.TaskStatusCancelled, got.Status)

	// Cancelling again is a no-op returning the terminal snapshot.
	result, err = tc.handleTasksCancel(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCancelled, result.(schema.GetTaskResult).Status)
}
