package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newRunnerFixture(t *testing.T) (*Runner, *MemoryStore, *shared.BaseSession, <-chan *shared.Message) {
	t.Helper()
	store := newTestStore(t, nil)
	runner := NewRunner(store, zap.NewNop())
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	output, ok := session.AcquireOutput()
	require.True(t, ok)
	t.Cleanup(func() { _ = session.Close() })
	return runner, store, session, output
}

// waitStatus polls the store until the task reaches the wanted status.
func waitStatus(t *testing.T, store Store, taskID, sessionID string, want schema.TaskStatus) *schema.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(context.Background(), taskID, sessionID)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
	return nil
}

func TestRunner_LaunchCompletes(t *testing.T) {
	runner, store, session, output := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		return map[string]string{"answer": "42"}, nil
	})

	waitStatus(t, store, task.TaskID, session.GetID(), schema.TaskStatusCompleted)
	result, err := store.GetResult(context.Background(), task.TaskID, session.GetID())
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"42"}`, string(result))

	// The terminal transition pushes a best-effort status notification.
	select {
	case msg := <-output:
		require.NotNil(t, msg.Method)
		assert.Equal(t, "notifications/tasks/status", *msg.Method)
		var params schema.TaskStatusNotificationParams
		require.NoError(t, json.Unmarshal(*msg.Params, &params))
		assert.Equal(t, task.TaskID, params.Task.TaskID)
		assert.Equal(t, schema.TaskStatusCompleted, params.Task.Status)
	case <-time.After(time.Second):
		t.Fatal("no status notification received")
	}
}

func TestRunner_LaunchFails(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("downstream unavailable")
	})

	snapshot := waitStatus(t, store, task.TaskID, session.GetID(), schema.TaskStatusFailed)
	assert.Equal(t, "downstream unavailable", snapshot.StatusMessage)

	_, err = store.GetResult(context.Background(), task.TaskID, session.GetID())
	assert.ErrorIs(t, err, ErrResultMissing)
}

func TestRunner_PanicMarksTaskFailed(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		panic("worker bug")
	})

	snapshot := waitStatus(t, store, task.TaskID, session.GetID(), schema.TaskStatusFailed)
	assert.Equal(t, "internal error", snapshot.StatusMessage)
}

func TestRunner_Cancel(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	started := make(chan struct{})
	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	snapshot, err := runner.Cancel(context.Background(), session, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCancelled, snapshot.Status)

	// Cancelling again keeps the terminal status.
	again, err := runner.Cancel(context.Background(), session, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCancelled, again.Status)
}

func TestRunner_StatusObserverSeesTerminalTransitions(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	observed := make(chan string, 4)
	runner.SetStatusObserver(func(status string) { observed <- status })

	completed, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)
	runner.Launch(session, completed, func(ctx context.Context) (interface{}, error) {
		return map[string]string{}, nil
	})
	waitStatus(t, store, completed.TaskID, session.GetID(), schema.TaskStatusCompleted)

	select {
	case status := <-observed:
		assert.Equal(t, string(schema.TaskStatusCompleted), status)
	case <-time.After(time.Second):
		t.Fatal("observer never saw the completion")
	}

	started := make(chan struct{})
	cancelled, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)
	runner.Launch(session, cancelled, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	_, err = runner.Cancel(context.Background(), session, cancelled.TaskID)
	require.NoError(t, err)

	select {
	case status := <-observed:
		assert.Equal(t, string(schema.TaskStatusCancelled), status)
	case <-time.After(time.Second):
		t.Fatal("observer never saw the cancellation")
	}

	// A second cancel of a terminal task records no transition.
	_, err = runner.Cancel(context.Background(), session, cancelled.TaskID)
	require.NoError(t, err)
	select {
	case status := <-observed:
		t.Fatalf("unexpected observation %q", status)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunner_CancelUnknownTask(t *testing.T) {
	runner, _, session, _ := newRunnerFixture(t)
	_, err := runner.Cancel(context.Background(), session, "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRunner_ShutdownStopsWorkers(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	started := make(chan struct{})
	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	done := make(chan struct{})
	go func() {
		runner.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
}

func TestExecutionContext(t *testing.T) {
	runner, store, session, _ := newRunnerFixture(t)

	task, err := store.Create(context.Background(), nil, nil, nil, session.GetID())
	require.NoError(t, err)

	captured := make(chan *Execution, 1)
	runner.Launch(session, task, func(ctx context.Context) (interface{}, error) {
		captured <- ExecutionFrom(ctx)
		return nil, nil
	})

	select {
	case exec := <-captured:
		require.NotNil(t, exec)
		assert.Equal(t, task.TaskID, exec.TaskID)
	case <-time.After(time.Second):
		t.Fatal("worker never ran")
	}
	waitStatus(t, store, task.TaskID, session.GetID(), schema.TaskStatusCompleted)
}
