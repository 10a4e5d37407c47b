package schema

import "time"

// TaskStatus is the lifecycle state of a long-running task.
type TaskStatus string

const (
	TaskStatusWorking       TaskStatus = "working"
	TaskStatusInputRequired TaskStatus = "input_required"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusFailed        TaskStatus = "failed"
	TaskStatusCancelled     TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing: once a task reaches a
// terminal status no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case TaskStatusWorking:
		return next == TaskStatusInputRequired || next.IsTerminal()
	case TaskStatusInputRequired:
		return next == TaskStatusWorking || next.IsTerminal()
	default:
		return false
	}
}

// Task is the pollable representation of a long-running request.
type Task struct {
	TaskID        string        `json:"taskId"`
	Status        TaskStatus    `json:"status"`
	StatusMessage string        `json:"statusMessage,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastUpdatedAt time.Time     `json:"lastUpdatedAt"`
	TTL           *Milliseconds `json:"ttl,omitempty"`          // nil means unlimited retention
	PollInterval  *Milliseconds `json:"pollInterval,omitempty"` // suggested client polling cadence
}

// TaskMetadata is the `task` object a requestor attaches under params to ask
// for task-augmented execution.
type TaskMetadata struct {
	TTL *Milliseconds `json:"ttl,omitempty"`
}

// CreateTaskResult is the immediate response to a task-augmented request,
// returned in place of the normal result.
type CreateTaskResult struct {
	Meta Meta `json:"_meta,omitempty"`
	Task Task `json:"task"`
}

// GetTaskRequest polls the current state of a task.
type GetTaskRequest struct {
	Method string            `json:"method"` // const: "tasks/get"
	Params TaskRequestParams `json:"params"`
}

// TaskRequestParams addresses a single task by ID (tasks/get, tasks/result,
// tasks/cancel).
type TaskRequestParams struct {
	TaskID string `json:"taskId"`
}

// GetTaskResult is the server's response to tasks/get.
type GetTaskResult struct {
	Meta Meta `json:"_meta,omitempty"`
	Task
}

// ListTasksRequest pages through tasks visible to the caller.
type ListTasksRequest struct {
	Method string                 `json:"method"` // const: "tasks/list"
	Params ListTasksRequestParams `json:"params,omitempty"`
}

// ListTasksRequestParams contains parameters for task listing requests.
type ListTasksRequestParams struct {
	PaginatedRequestParams // Embeds pagination cursor
}

// ListTasksResult is the server's response to tasks/list.
type ListTasksResult struct {
	PaginatedResult        // Embeds next cursor
	Meta            Meta   `json:"_meta,omitempty"`
	Tasks           []Task `json:"tasks"`
}

// CancelTaskRequest asks the receiver to cancel a task. Cancelling a task
// that already reached a terminal status is a no-op returning current state.
type CancelTaskRequest struct {
	Method string            `json:"method"` // const: "tasks/cancel"
	Params TaskRequestParams `json:"params"`
}

// TaskStatusNotification is a best-effort push of a task state change.
// Clients must still poll; delivery is not guaranteed.
type TaskStatusNotification struct {
	Method string                       `json:"method"` // const: "notifications/tasks/status"
	Params TaskStatusNotificationParams `json:"params"`
}

// TaskStatusNotificationParams carries the task snapshot after a transition.
type TaskStatusNotificationParams struct {
	Task
}
