package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// Work is the body of a task-augmented request. It runs detached from the
// request that created the task; ctx carries the task execution and is
// cancelled by tasks/cancel.
type Work func(ctx context.Context) (interface{}, error)

// Runner executes task-augmented requests on background workers and records
// their outcome in the store.
type Runner struct {
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	observer func(status string)
	wg       sync.WaitGroup
}

// NewRunner creates a runner over the given store.
func NewRunner(store Store, logger *zap.Logger) *Runner {
	return &Runner{
		store:   store,
		logger:  logger.Named("task-runner"),
		running: make(map[string]context.CancelFunc),
	}
}

// Store returns the backing task store.
func (r *Runner) Store() Store { return r.store }

// SetStatusObserver registers a callback invoked with the resulting status of
// every terminal transition the runner records.
func (r *Runner) SetStatusObserver(observer func(status string)) {
	r.mu.Lock()
	r.observer = observer
	r.mu.Unlock()
}

func (r *Runner) observeStatus(status schema.TaskStatus) {
	r.mu.Lock()
	observer := r.observer
	r.mu.Unlock()
	if observer != nil {
		observer(string(status))
	}
}

// Launch starts the worker of a freshly created task. The worker outlives the
// request that created the task and survives transport disconnects; only
// tasks/cancel or Shutdown stop it early.
func (r *Runner) Launch(session shared.ISession, task *schema.Task, work Work) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithExecution(ctx, r.store, task.TaskID, session.GetID())

	r.mu.Lock()
	r.running[task.TaskID] = cancel
	r.mu.Unlock()

	logger := r.logger.With(zap.String("task_id", task.TaskID))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, task.TaskID)
			r.mu.Unlock()
			cancel()
			if rec := recover(); rec != nil {
				logger.Error("Panic in task worker", zap.Any("panic", rec))
				r.finish(session, task.TaskID, schema.TaskStatusFailed, "internal error", nil)
			}
		}()

		result, err := work(ctx)
		if ctx.Err() != nil {
			// Cancellation already moved the task to its terminal status.
			logger.Debug("Task worker stopped by cancellation")
			return
		}
		if err != nil {
			r.finish(session, task.TaskID, schema.TaskStatusFailed, err.Error(), nil)
			return
		}

		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			logger.Error("Failed to marshal task result", zap.Error(marshalErr))
			r.finish(session, task.TaskID, schema.TaskStatusFailed, "result serialization failed", nil)
			return
		}
		r.finish(session, task.TaskID, schema.TaskStatusCompleted, "", data)
	}()
}

// finish records the terminal status and pushes the best-effort status
// notification.
func (r *Runner) finish(session shared.ISession, taskID string, status schema.TaskStatus, statusMessage string, result json.RawMessage) {
	snapshot, err := r.store.StoreResult(context.Background(), taskID, status, statusMessage, result, session.GetID())
	if err != nil {
		if !errors.Is(err, ErrTaskTerminal) && !errors.Is(err, ErrTaskNotFound) {
			r.logger.Error("Failed to store task outcome", zap.String("task_id", taskID), zap.Error(err))
		}
		return
	}
	r.observeStatus(snapshot.Status)
	NotifyStatus(session, snapshot)
}

// Cancel stops the worker of a task, if one is still running, and moves the
// task to Cancelled. Cancelling a terminal task returns its current snapshot.
func (r *Runner) Cancel(ctx context.Context, session shared.ISession, taskID string) (*schema.Task, error) {
	before, err := r.store.Get(ctx, taskID, session.GetID())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	cancel := r.running[taskID]
	delete(r.running, taskID)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	snapshot, err := r.store.Cancel(ctx, taskID, session.GetID())
	if err != nil {
		return nil, err
	}
	if !before.Status.IsTerminal() {
		r.observeStatus(snapshot.Status)
		NotifyStatus(session, snapshot)
	}
	return snapshot, nil
}

// Shutdown cancels every running worker and waits for them to exit.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.running))
	for id, cancel := range r.running {
		cancels = append(cancels, cancel)
		delete(r.running, id)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	r.wg.Wait()
}

// NotifyStatus pushes notifications/tasks/status for a task snapshot. The
// notification is advisory; pollers must not rely on receiving it.
func NotifyStatus(session shared.ISession, task *schema.Task) {
	if task == nil {
		return
	}
	session.SendNotification(context.Background(), "notifications/tasks/status",
		schema.TaskStatusNotificationParams{Task: *task})
}
