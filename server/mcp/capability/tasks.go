package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

var _ shared.IServerCapability = (*TasksCapability)(nil)

// TasksCapability serves the task polling surface: tasks/get, tasks/result,
// tasks/list and tasks/cancel. The task-augmented execution itself is started
// by the capability owning the augmented method.
type TasksCapability struct {
	logger   *zap.Logger
	runner   *tasks.Runner
	handlers map[string]shared.MessageHandler
}

// NewTasksCapability creates a new TasksCapability over the given runner.
func NewTasksCapability(runner *tasks.Runner, logger *zap.Logger) *TasksCapability {
	tc := &TasksCapability{
		logger: logger,
		runner: runner,
	}
	tc.handlers = map[string]shared.MessageHandler{
		"tasks/get":    tc.handleTasksGet,
		"tasks/result": tc.handleTasksResult,
		"tasks/list":   tc.handleTasksList,
		"tasks/cancel": tc.handleTasksCancel,
	}
	return tc
}

func (tc *TasksCapability) GetHandlers() map[string]shared.MessageHandler {
	return tc.handlers
}

func (tc *TasksCapability) SetCapabilities(s *schema.ServerCapabilities) {
	if s.Tasks == nil {
		s.Tasks = &schema.TasksCapability{}
	}
	s.Tasks.List = &struct{}{}
	s.Tasks.Cancel = &struct{}{}
}

// taskError maps store errors onto protocol errors.
func taskError(err error) error {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "task not found"}
	case errors.Is(err, tasks.ErrTaskTerminal):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidRequest, Message: "task already reached a terminal status"}
	case errors.Is(err, tasks.ErrResultMissing):
		return &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidRequest, Message: "task result is not available"}
	default:
		return err
	}
}

func parseTaskParams(msg *shared.Message) (*schema.TaskRequestParams, error) {
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	var params schema.TaskRequestParams
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}
	if params.TaskID == "" {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "taskId is required"}
	}
	return &params, nil
}

// handleTasksGet handles the "tasks/get" request.
func (tc *TasksCapability) handleTasksGet(ctx context.Context, msg *shared.Message) (interface{}, error) {
	params, err := parseTaskParams(msg)
	if err != nil {
		return nil, err
	}
	task, err := tc.runner.Store().Get(ctx, params.TaskID, msg.Session.GetID())
	if err != nil {
		return nil, taskError(err)
	}
	return schema.GetTaskResult{Task: *task}, nil
}

// handleTasksResult handles the "tasks/result" request. The stored result is
// returned verbatim as the response result.
func (tc *TasksCapability) handleTasksResult(ctx context.Context, msg *shared.Message) (interface{}, error) {
	params, err := parseTaskParams(msg)
	if err != nil {
		return nil, err
	}
	result, err := tc.runner.Store().GetResult(ctx, params.TaskID, msg.Session.GetID())
	if err != nil {
		return nil, taskError(err)
	}
	return result, nil
}

// handleTasksList handles the "tasks/list" request.
func (tc *TasksCapability) handleTasksList(ctx context.Context, msg *shared.Message) (interface{}, error) {
	var params schema.ListTasksRequestParams
	if msg.Params != nil {
		if err := json.Unmarshal(*msg.Params, &params); err != nil {
			return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
		}
	}

	list, next, err := tc.runner.Store().List(ctx, params.Cursor, msg.Session.GetID())
	if err != nil {
		return nil, taskError(err)
	}
	return schema.ListTasksResult{
		Tasks:           list,
		PaginatedResult: schema.PaginatedResult{NextCursor: next},
	}, nil
}

// handleTasksCancel handles the "tasks/cancel" request. Cancelling a task
// that already reached a terminal status is a no-op returning current state.
func (tc *TasksCapability) handleTasksCancel(ctx context.Context, msg *shared.Message) (interface{}, error) {
	params, err := parseTaskParams(msg)
	if err != nil {
		return nil, err
	}
	task, err := tc.runner.Cancel(ctx, msg.Session, params.TaskID)
	if err != nil {
		return nil, taskError(err)
	}
	tc.logger.Info("Task cancel handled",
		zap.String("sessionID", msg.Session.GetID()),
		zap.String("taskID", params.TaskID),
		zap.String("status", string(task.Status)),
	)
	return schema.GetTaskResult{Task: *task}, nil
}
