package tasks

import "context"

type executionKeyType struct{}

var executionKey = executionKeyType{}

// Execution identifies the task a handler is running on behalf of. It travels
// on the worker context so session helpers can adjust the task status around
// client round trips.
type Execution struct {
	TaskID    string
	SessionID string
	store     Store
}

// Store returns the store the execution's task lives in.
func (e *Execution) Store() Store { return e.store }

// WithExecution attaches a task execution to a context.
func WithExecution(ctx context.Context, store Store, taskID, sessionID string) context.Context {
	return context.WithValue(ctx, executionKey, &Execution{
		TaskID:    taskID,
		SessionID: sessionID,
		store:     store,
	})
}

// ExecutionFrom returns the task execution on the context, or nil when the
// handler runs a plain request.
func ExecutionFrom(ctx context.Context) *Execution {
	exec, _ := ctx.Value(executionKey).(*Execution)
	return exec
}
